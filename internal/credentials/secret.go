package credentials

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	corev1client "k8s.io/client-go/kubernetes/typed/core/v1"
)

const managedLabel = "bot-console.oremuslabs.app/managed-secret"

// SecretStore reads credentials from the data keys of one Kubernetes Secret.
type SecretStore struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

// NewSecretStore constructs a SecretStore for namespace/name.
func NewSecretStore(client kubernetes.Interface, namespace, name string) *SecretStore {
	return &SecretStore{
		client:    client,
		namespace: namespace,
		name:      name,
	}
}

func (s *SecretStore) secretsClient() corev1client.SecretInterface {
	return s.client.CoreV1().Secrets(s.namespace)
}

// Get implements Reader.
func (s *SecretStore) Get(ctx context.Context, key string) (string, error) {
	sec, err := s.secretsClient().Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get secret %s/%s: %w", s.namespace, s.name, err)
	}
	if v, ok := sec.Data[key]; ok && len(v) > 0 {
		return string(v), nil
	}
	// StringData is only populated on objects that never round-tripped
	// through the API server, e.g. fake clients.
	if v, ok := sec.StringData[key]; ok && v != "" {
		return v, nil
	}
	return "", ErrNotFound
}

// Set implements Writer, creating the secret when it does not exist.
func (s *SecretStore) Set(ctx context.Context, key, value string) error {
	client := s.secretsClient()
	existing, err := client.Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return fmt.Errorf("get secret %s/%s: %w", s.namespace, s.name, err)
		}
		_, err = client.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
				Labels: map[string]string{
					managedLabel: "true",
				},
			},
			Data: map[string][]byte{key: []byte(value)},
			Type: corev1.SecretTypeOpaque,
		}, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("create secret %s/%s: %w", s.namespace, s.name, err)
		}
		return nil
	}

	updated := existing.DeepCopy()
	if updated.Data == nil {
		updated.Data = map[string][]byte{}
	}
	if value == "" {
		delete(updated.Data, key)
	} else {
		updated.Data[key] = []byte(value)
	}
	if _, err := client.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update secret %s/%s: %w", s.namespace, s.name, err)
	}
	return nil
}
