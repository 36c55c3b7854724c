// Package params reads and writes configuration values held in SSM Parameter Store and
// secrets held in Secrets Manager.
package params

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// ErrNotFound is returned (wrapped) when a parameter or secret does not exist.
var ErrNotFound = errors.New("params: not found")

// Reader looks up a single parameter value.
type Reader interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Store reads and writes parameters.
type Store interface {
	Reader
	PutParameter(ctx context.Context, name, value string, opts PutOptions) error
}

// SecretReader looks up a single secret string.
type SecretReader interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// PutOptions controls how a parameter is written.
type PutOptions struct {
	// Secure stores the value as a SecureString.
	Secure bool
}

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type secretsAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SSMStore is a Store over SSM Parameter Store. Values are always read with decryption.
type SSMStore struct {
	client ssmAPI
}

var _ Store = (*SSMStore)(nil)

func NewSSMStore(client ssmAPI) *SSMStore {
	return &SSMStore{client: client}
}

func (s *SSMStore) GetParameter(ctx context.Context, name string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("params: ssm client is nil")
	}
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isNotFound(err, "ParameterNotFound") {
			return "", fmt.Errorf("%w: parameter %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil {
		return "", fmt.Errorf("%w: parameter %s", ErrNotFound, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (s *SSMStore) PutParameter(ctx context.Context, name, value string, opts PutOptions) error {
	if s == nil || s.client == nil {
		return errors.New("params: ssm client is nil")
	}
	paramType := types.ParameterTypeString
	if opts.Secure {
		paramType = types.ParameterTypeSecureString
	}
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("put parameter %s: %w", name, err)
	}
	return nil
}

// SecretsManagerReader is a SecretReader over Secrets Manager.
type SecretsManagerReader struct {
	client secretsAPI
}

var _ SecretReader = (*SecretsManagerReader)(nil)

func NewSecretsManagerReader(client secretsAPI) *SecretsManagerReader {
	return &SecretsManagerReader{client: client}
}

func (s *SecretsManagerReader) GetSecret(ctx context.Context, name string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("params: secrets manager client is nil")
	}
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isNotFound(err, "ResourceNotFoundException") {
			return "", fmt.Errorf("%w: secret %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if out == nil || out.SecretString == nil {
		return "", fmt.Errorf("%w: secret %s has no string value", ErrNotFound, name)
	}
	return aws.ToString(out.SecretString), nil
}

func isNotFound(err error, code string) bool {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}

// MemoryStore keeps parameters and secrets in memory for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	secure  map[string]bool
	secrets map[string]string
	puts    int
	gets    int
	err     error
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ SecretReader = (*MemoryStore)(nil)
)

func NewMemoryStore(values map[string]string) *MemoryStore {
	s := &MemoryStore{
		values:  map[string]string{},
		secure:  map[string]bool{},
		secrets: map[string]string{},
	}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// SetSecret seeds a secret value.
func (s *MemoryStore) SetSecret(name, value string) {
	s.mu.Lock()
	s.secrets[name] = value
	s.mu.Unlock()
}

// FailWith makes every subsequent call return err.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *MemoryStore) GetParameter(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: parameter %s", ErrNotFound, name)
	}
	return v, nil
}

func (s *MemoryStore) PutParameter(_ context.Context, name, value string, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.err != nil {
		return s.err
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("params: parameter name is empty")
	}
	s.values[name] = value
	s.secure[name] = opts.Secure
	return nil
}

func (s *MemoryStore) GetSecret(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: secret %s", ErrNotFound, name)
	}
	return v, nil
}

// Value returns a stored parameter and whether it was written as secure.
func (s *MemoryStore) Value(name string) (value string, secure bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok = s.values[name]
	return value, s.secure[name], ok
}

// Calls reports how many reads and writes have been made.
func (s *MemoryStore) Calls() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts
}
