// Package secrets stores folder settings records in AWS Secrets Manager, one
// secret per managed folder. The record holds only the passphrase-wrapped
// private key, so a leaked secret value does not expose bookmarks.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	kerrors "github.com/bmlock/bmlock/internal/errors"
	"github.com/bmlock/bmlock/internal/settings"
)

// API is the subset of the Secrets Manager client the store uses.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// Store is a settings.ListingStore backed by Secrets Manager. Secrets are named
// <prefix>node_settings/<folderId>.
//
// Secrets Manager has no conditional put, so the version check is a
// read-compare-write guarded by an in-process mutex.
type Store struct {
	client API
	prefix string

	mu sync.Mutex
}

// NewStore loads the default AWS configuration for region.
func NewStore(ctx context.Context, region, prefix string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewStoreWithClient(secretsmanager.NewFromConfig(cfg), prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client API, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) secretName(folderID string) string {
	return s.prefix + settings.StorageKey(folderID)
}

// isNotFound matches ResourceNotFoundException by type, then by error code.
func isNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) && coded.ErrorCode() == "ResourceNotFoundException" {
		return true
	}
	return false
}

func (s *Store) Get(ctx context.Context, folderID string) (settings.NodeSettings, bool, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName(folderID)),
	})
	if err != nil {
		if isNotFound(err) {
			return settings.NodeSettings{}, false, nil
		}
		return settings.NodeSettings{}, false, fmt.Errorf("get secret: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	if result.SecretString == nil {
		return settings.NodeSettings{}, false, fmt.Errorf("%w: secret %s has no string value", kerrors.ErrMalformedInput, s.secretName(folderID))
	}

	ns, err := settings.NodeSettingsFromJSON([]byte(*result.SecretString))
	if err != nil {
		return settings.NodeSettings{}, false, err
	}
	return ns, true, nil
}

func (s *Store) Set(ctx context.Context, folderID string, ns settings.NodeSettings) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists, err := s.Get(ctx, folderID)
	if err != nil {
		return err
	}
	var stored int64
	if exists {
		stored = current.Version
	}
	if ns.Version != stored {
		return fmt.Errorf("folder %s: read version %d, stored version %d: %w", folderID, ns.Version, stored, kerrors.ErrVersionConflict)
	}

	ns.Version++
	ns.SetModifiedAt(time.Now())
	blob, err := ns.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	name := s.secretName(folderID)

	if exists {
		_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(string(blob)),
		})
	} else {
		_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(string(blob)),
			Description:  aws.String("bmlock folder settings: passphrase-wrapped folder private key"),
		})
	}
	if err != nil {
		return fmt.Errorf("write secret: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the secret immediately, without a recovery window.
func (s *Store) Delete(ctx context.Context, folderID string) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(s.secretName(folderID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete secret: %w: %w", kerrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	namePrefix := s.prefix + settings.KeyPrefix
	var ids []string
	var token *string
	for {
		out, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
			Filters: []types.Filter{{
				Key:    types.FilterNameStringTypeName,
				Values: []string{namePrefix},
			}},
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w: %w", kerrors.ErrStoreUnavailable, err)
		}
		for _, entry := range out.SecretList {
			name := aws.ToString(entry.Name)
			// The name filter is a prefix match on words; check it exactly.
			if !strings.HasPrefix(name, namePrefix) {
				continue
			}
			if id, ok := settings.FolderIDFromKey(strings.TrimPrefix(name, s.prefix)); ok {
				ids = append(ids, id)
			}
		}
		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}
	sort.Strings(ids)
	return ids, nil
}
