package awsiam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appconfig "iamdash/internal/config"
	"iamdash/internal/domain"
	"iamdash/internal/logging"
)

// ClientManager builds and caches per-account IAM clients. Credentials
// resolve through the standard chain, scoped by each account's profile.
type ClientManager struct {
	mu       sync.RWMutex
	accounts map[string]appconfig.Account
	iam      map[string]*iam.Client
	sts      map[string]*sts.Client
}

func NewClientManager(accounts map[string]appconfig.Account) *ClientManager {
	return &ClientManager{
		accounts: accounts,
		iam:      make(map[string]*iam.Client),
		sts:      make(map[string]*sts.Client),
	}
}

func (m *ClientManager) loadConfig(ctx context.Context, acct appconfig.Account) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(5),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewAdaptiveMode(func(o *retry.AdaptiveModeOptions) {
				o.StandardOptions = append(o.StandardOptions, func(so *retry.StandardOptions) {
					so.MaxBackoff = 30 * time.Second
				})
			})
		}),
	}
	if acct.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(acct.Profile))
	}
	if acct.Region != "" {
		opts = append(opts, awsconfig.WithRegion(acct.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for account %s: %w", acct.Key, err)
	}
	return cfg, nil
}

// IAMClient returns the cached IAM client for an account key.
func (m *ClientManager) IAMClient(ctx context.Context, accountKey string) (*iam.Client, error) {
	m.mu.RLock()
	if client, ok := m.iam[accountKey]; ok {
		m.mu.RUnlock()
		return client, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.iam[accountKey]; ok {
		return client, nil
	}

	acct, ok := m.accounts[accountKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountKey)
	}
	cfg, err := m.loadConfig(ctx, acct)
	if err != nil {
		return nil, err
	}
	client := iam.NewFromConfig(cfg)
	m.iam[accountKey] = client
	logging.LogDebug("Initialized IAM client", map[string]interface{}{"account": accountKey})
	return client, nil
}

// VerifyCredentials runs an STS GetCallerIdentity preflight for the account
// and returns the account ID. Fail fast at startup if credentials are dead.
func (m *ClientManager) VerifyCredentials(ctx context.Context, accountKey string) (string, error) {
	m.mu.Lock()
	client, ok := m.sts[accountKey]
	if !ok {
		acct, found := m.accounts[accountKey]
		if !found {
			m.mu.Unlock()
			return "", fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountKey)
		}
		cfg, err := m.loadConfig(ctx, acct)
		if err != nil {
			m.mu.Unlock()
			return "", err
		}
		client = sts.NewFromConfig(cfg)
		m.sts[accountKey] = client
	}
	m.mu.Unlock()

	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("credential check failed for account %s: %w", accountKey, err)
	}
	if out == nil || out.Account == nil {
		return "", fmt.Errorf("empty account ID in caller identity for %s", accountKey)
	}
	return aws.ToString(out.Account), nil
}
