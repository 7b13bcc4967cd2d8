// Package config предоставляет загрузку конфигурации из файла и переменных
// окружения с последующей валидацией.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"authpipe/pkg/logger"
)

const (
	msgLoadingConfiguration    = "loading configuration"
	msgConfigurationLoaded     = "configuration loaded successfully"
	msgFailedLoadConfiguration = "failed to load configuration"

	errFailedLoadConfiguration     = "failed to load configuration"
	errFailedValidateConfiguration = "invalid configuration"

	attrService = "service"
	attrPath    = "path"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load читает конфигурацию типа T. Если path указывает на существующий
// YAML/JSON/TOML/.env файл, он читается вместе с окружением; иначе читаются
// только переменные окружения. Результат проверяется тегами validate.
func Load[T any](ctx context.Context, serviceName, path string) (*T, error) {
	log := logger.Log(ctx).With(zap.String(attrService, serviceName))
	log.Info(ctx, msgLoadingConfiguration, zap.String(attrPath, path))

	var cfg T
	var err error
	if path != "" && fileExists(path) {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		log.Error(ctx, msgFailedLoadConfiguration, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", errFailedLoadConfiguration, err)
	}

	if err := validate.Struct(&cfg); err != nil {
		log.Error(ctx, msgFailedLoadConfiguration, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", errFailedValidateConfiguration, err)
	}

	log.Info(ctx, msgConfigurationLoaded)
	return &cfg, nil
}

// ValidationErrors возвращает имена полей, не прошедших валидацию.
func ValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
	}
	return fields
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
