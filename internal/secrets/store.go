package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Store fetches secret values by fully-qualified resource path
// (projects/<project>/secrets/<name>/versions/latest).
type Store interface {
	// AccessSecret returns the UTF-8 payload of the given secret version.
	AccessSecret(ctx context.Context, resourceName string) (string, error)

	// Close releases the underlying client.
	Close() error
}

// gcpStore is a Store backed by Google Cloud Secret Manager.
type gcpStore struct {
	client *secretmanager.Client
}

// NewGCPStore creates a Secret Manager backed Store using application
// default credentials.
func NewGCPStore(ctx context.Context) (Store, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &gcpStore{client: client}, nil
}

func (s *gcpStore) AccessSecret(ctx context.Context, resourceName string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("access secret version %s: %w", resourceName, err)
	}

	payload := string(resp.GetPayload().GetData())
	if payload == "" {
		return "", fmt.Errorf("secret %s has an empty payload", resourceName)
	}
	return payload, nil
}

func (s *gcpStore) Close() error {
	return s.client.Close()
}
