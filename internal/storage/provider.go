package storage

import (
	"fmt"
	"strings"

	"github.com/edushare/edushare-backend/internal/pkg/envutil"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeS3    Mode = "s3"
)

func IsSupportedMode(m Mode) bool {
	return m == ModeLocal || m == ModeS3
}

type BootstrapErrorCode string

const (
	BootstrapErrorInvalidMode   BootstrapErrorCode = "invalid_mode"
	BootstrapErrorMissingBucket BootstrapErrorCode = "missing_bucket"
	BootstrapErrorConnectFailed BootstrapErrorCode = "connect_failed"
)

type BootstrapError struct {
	Code  BootstrapErrorCode
	Mode  string
	Cause error
}

func (e *BootstrapError) Error() string {
	if e == nil {
		return "storage bootstrap failed"
	}
	return fmt.Sprintf("storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *BootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewDriverFromEnv selects and connects the storage driver from STORAGE_MODE
// and mode-specific env vars.
func NewDriverFromEnv(log *logger.Logger) (Driver, Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(envutil.GetEnv("STORAGE_MODE", string(ModeLocal), log))))
	if !IsSupportedMode(mode) {
		err := &BootstrapError{
			Code:  BootstrapErrorInvalidMode,
			Mode:  string(mode),
			Cause: fmt.Errorf("unsupported storage mode %q", mode),
		}
		log.Error("Storage driver selection failed", "mode", mode, "error_code", err.Code, "error", err)
		return nil, mode, err
	}

	log.Info("Selecting storage driver", "mode", mode)

	switch mode {
	case ModeS3:
		cfg := S3Config{
			Bucket:    envutil.GetEnv("S3_BUCKET", "", log),
			Region:    envutil.GetEnv("S3_REGION", "us-east-1", log),
			Endpoint:  envutil.GetEnv("S3_ENDPOINT", "", log),
			AccessKey: envutil.GetEnv("S3_ACCESS_KEY", "", log),
			SecretKey: envutil.GetEnv("S3_SECRET_KEY", "", log),
			UseSSL:    envutil.GetEnv("S3_USE_SSL", "true", log) != "false",
		}
		if cfg.Bucket == "" {
			err := &BootstrapError{
				Code:  BootstrapErrorMissingBucket,
				Mode:  string(mode),
				Cause: fmt.Errorf("S3_BUCKET is required in s3 mode"),
			}
			log.Error("Storage driver bootstrap failed", "mode", mode, "error_code", err.Code, "error", err)
			return nil, mode, err
		}
		driver, err := NewS3Driver(log, cfg)
		if err != nil {
			be := &BootstrapError{Code: BootstrapErrorConnectFailed, Mode: string(mode), Cause: err}
			log.Error("Storage driver bootstrap failed", "mode", mode, "error_code", be.Code, "error", be)
			return nil, mode, be
		}
		return driver, mode, nil

	default:
		root := envutil.GetEnv("STORAGE_LOCAL_DIR", "./uploads", log)
		baseURL := envutil.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080", log)
		driver, err := NewLocalDriver(log, root, baseURL)
		if err != nil {
			be := &BootstrapError{Code: BootstrapErrorConnectFailed, Mode: string(mode), Cause: err}
			log.Error("Storage driver bootstrap failed", "mode", mode, "error_code", be.Code, "error", be)
			return nil, mode, be
		}
		return driver, mode, nil
	}
}
