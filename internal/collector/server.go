// Package collector is a reference ingestion endpoint. It accepts captures
// exactly the way the daemon's uploader sends them and stores them per device.
// It exists for local testing and small installations; the daemon itself
// never depends on it.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"timelapse/internal/config"
	"timelapse/internal/fileutil"
	"timelapse/internal/logging"
)

const (
	headerDeviceID    = "X-Device-Id"
	headerDeviceToken = "X-Device-Token"
	headerFilename    = "X-Filename"
	bytesPerMiB       = 1024 * 1024
	shutdownTimeout   = 5 * time.Second
)

type device struct {
	token   string
	maxSize int64
	dir     string
}

// Server validates and stores uploads.
type Server struct {
	bind    string
	devices map[string]device
	logger  *slog.Logger
	engine  *gin.Engine
}

// New builds a collector from the [collector] section of cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if len(cfg.Collector.Devices) == 0 {
		return nil, errors.New("collector: no devices configured")
	}
	s := &Server{
		bind:    cfg.Collector.Bind,
		devices: make(map[string]device, len(cfg.Collector.Devices)),
		logger:  logging.NewComponentLogger(logger, "collector"),
	}
	for _, d := range cfg.Collector.Devices {
		dir := filepath.Join(cfg.Collector.UploadDir, d.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
		s.devices[d.ID] = device{
			token:   d.Token,
			maxSize: int64(d.MaxFileSizeMB * bytesPerMiB),
			dir:     dir,
		}
	}

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/", s.health)
	router.POST("/upload", s.upload)
	s.engine = router
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	s.logger.Info("collector listening",
		logging.String("address", listener.Addr().String()),
		logging.Int("devices", len(s.devices)),
		logging.String(logging.FieldEventType, "collector_started"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown collector: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) upload(c *gin.Context) {
	deviceID := c.GetHeader(headerDeviceID)
	token := c.GetHeader(headerDeviceToken)
	if deviceID == "" || token == "" {
		reject(c, http.StatusBadRequest, "missing device id or token")
		return
	}
	dev, ok := s.devices[deviceID]
	if !ok {
		reject(c, http.StatusForbidden, "unknown device")
		return
	}
	if token != dev.token {
		reject(c, http.StatusForbidden, "invalid device token")
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, dev.maxSize+1))
	if err != nil {
		reject(c, http.StatusBadRequest, "read body failed")
		return
	}
	if len(data) == 0 {
		reject(c, http.StatusBadRequest, "empty body")
		return
	}
	if int64(len(data)) > dev.maxSize {
		reject(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !isJPEGMagic(data) {
		reject(c, http.StatusUnsupportedMediaType, "not jpeg")
		return
	}

	header := c.GetHeader(headerFilename)
	if header == "" {
		reject(c, http.StatusBadRequest, "missing filename header")
		return
	}
	name := filepath.Base(header)
	if !validFilename(deviceID, name) {
		reject(c, http.StatusBadRequest, "invalid filename format")
		return
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		reject(c, http.StatusBadRequest, "invalid jpeg")
		return
	}

	if err := fileutil.WriteFileAtomic(dev.dir, name, data, 0o644); err != nil {
		logging.ErrorWithContext(s.logger, "failed to store upload", "collector_write_failed",
			logging.Artifact(name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check collector.upload_dir permissions and free space"),
		)
		reject(c, http.StatusInternalServerError, "write failed")
		return
	}
	path := filepath.Join(dev.dir, name)
	if err := fileutil.VerifyContent(path, data); err != nil {
		_ = os.Remove(path)
		reject(c, http.StatusBadRequest, "size mismatch")
		return
	}

	s.logger.Info("upload stored",
		logging.String("device", deviceID),
		logging.Artifact(name),
		logging.Int("bytes", len(data)),
		logging.String(logging.FieldEventType, "upload_stored"),
	)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": fmt.Sprintf("file %s uploaded", name)})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldCorrelationID, c.GetHeader("X-Request-Id")),
		)
	}
}

func reject(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"status": "error", "message": message})
}

// isJPEGMagic accepts FF D8 FF followed by an APPn marker (E0..EF).
func isJPEGMagic(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF &&
		data[3] >= 0xE0 && data[3] <= 0xEF
}

const timestampPattern = `\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}`

func validFilename(deviceID, name string) bool {
	pattern := `^pic_` + regexp.QuoteMeta(deviceID) + `_` + timestampPattern + `\.jpg$`
	matched, err := regexp.MatchString(pattern, name)
	return err == nil && matched
}
