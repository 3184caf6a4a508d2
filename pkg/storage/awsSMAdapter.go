package storage

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"go.uber.org/zap"
)

// AWSSMAdapterConfig holds the configuration for the AWS Secrets Manager
// persistence adapter.
type AWSSMAdapterConfig struct {
	// Region specifies the AWS region where the secrets are stored
	Region string
	// SecretPrefix is prepended to every slot name so multiple deployments can
	// share one account without colliding
	SecretPrefix string
}

// AWSSMAdapter implements IPersistenceAdapter on AWS Secrets Manager.
// This adapter is intended for server-side processes that must not keep
// session key material on local disk. Each slot maps to one secret named
// "<prefix><slot>".
type AWSSMAdapter struct {
	logger *zap.Logger
	config *AWSSMAdapterConfig
	client *secretsmanager.SecretsManager
}

// NewAWSSMAdapter creates a new AWSSMAdapter instance.
// The adapter establishes an AWS session in the configured region; the secrets
// themselves are created lazily on first Set.
//
// Parameters:
//   - cfg: The adapter configuration
//   - logger: A zap logger for logging operations and errors
//
// Returns:
//   - *AWSSMAdapter: A new Secrets Manager backed adapter
//   - error: An error if the AWS session cannot be created
func NewAWSSMAdapter(cfg *AWSSMAdapterConfig, logger *zap.Logger) (*AWSSMAdapter, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &AWSSMAdapter{
		logger: logger,
		config: cfg,
		client: secretsmanager.New(sess),
	}, nil
}

func (a *AWSSMAdapter) secretName(key string) string {
	return a.config.SecretPrefix + key
}

func (a *AWSSMAdapter) Get(key string) (string, error) {
	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretName(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get secret value: %w", err)
	}
	if result.SecretString == nil {
		return "", ErrKeyNotFound
	}
	return *result.SecretString, nil
}

func (a *AWSSMAdapter) Set(key string, value string) error {
	name := a.secretName(key)
	_, err := a.client.PutSecretValue(&secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	a.logger.Sugar().Debugw("Secret does not exist, creating",
		zap.String("secretName", name),
	)
	_, err = a.client.CreateSecret(&secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(value),
	})
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

func (a *AWSSMAdapter) Remove(key string) error {
	_, err := a.client.DeleteSecret(&secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(a.secretName(key)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException
	}
	return false
}
