package awsiam

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"iamdash/internal/domain"
	"iamdash/internal/logging"
)

// Fetcher assembles identity snapshots for one account. Partial retrieval
// failures (a single policy version fetch, a last-used lookup) degrade to
// warnings so one flaky call does not block the whole assessment.
type Fetcher struct {
	api     SnapshotAPI
	account string
}

func NewFetcher(api SnapshotAPI, account string) *Fetcher {
	return &Fetcher{api: api, account: account}
}

// FetchIdentitySnapshot retrieves the full permission surface of one IAM
// user: attached and inline policy documents, group memberships, access key
// metadata, MFA devices, and console access.
func (f *Fetcher) FetchIdentitySnapshot(ctx context.Context, identityName string) (domain.IdentitySnapshot, error) {
	userOut, err := f.api.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(identityName)})
	if err != nil {
		if isNoSuchEntity(err) {
			return domain.IdentitySnapshot{}, fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityName)
		}
		return domain.IdentitySnapshot{}, fmt.Errorf("failed to get user %s: %w", identityName, err)
	}

	snap := domain.IdentitySnapshot{
		IdentityName: identityName,
		Account:      f.account,
		ARN:          aws.ToString(userOut.User.Arn),
	}
	if userOut.User.CreateDate != nil {
		snap.CreatedAt = *userOut.User.CreateDate
	}

	snap.AttachedPolicies = f.fetchAttachedPolicies(ctx, identityName)
	snap.InlinePolicies = f.fetchInlinePolicies(ctx, identityName)
	snap.Groups = f.fetchGroups(ctx, identityName)
	snap.Credentials = f.fetchCredentials(ctx, identityName)
	snap.MFADeviceCount = f.countMFADevices(ctx, identityName)
	snap.HasConsoleAccess = f.hasLoginProfile(ctx, identityName)

	return snap, nil
}

func (f *Fetcher) fetchAttachedPolicies(ctx context.Context, userName string) []domain.PolicyDocument {
	docs := make([]domain.PolicyDocument, 0)

	attached, err := f.api.ListAttachedUserPolicies(ctx, &iam.ListAttachedUserPoliciesInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		logging.LogWarn("Failed to list attached policies", map[string]interface{}{
			"identity": userName, "account": f.account, "error": err.Error(),
		})
		return docs
	}

	for _, policy := range attached.AttachedPolicies {
		doc := domain.PolicyDocument{
			Name: aws.ToString(policy.PolicyName),
			ARN:  aws.ToString(policy.PolicyArn),
		}

		policyOut, err := f.api.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: policy.PolicyArn})
		if err == nil && policyOut.Policy != nil {
			versionOut, err := f.api.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
				PolicyArn: policyOut.Policy.Arn,
				VersionId: policyOut.Policy.DefaultVersionId,
			})
			if err == nil && versionOut.PolicyVersion != nil {
				doc.Raw = []byte(decodePolicyDocument(aws.ToString(versionOut.PolicyVersion.Document)))
			}
		}
		if len(doc.Raw) == 0 {
			logging.LogDebug("Attached policy document unavailable, keeping metadata only", map[string]interface{}{
				"identity": userName, "account": f.account, "policy": doc.Name,
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

func (f *Fetcher) fetchInlinePolicies(ctx context.Context, userName string) []domain.PolicyDocument {
	docs := make([]domain.PolicyDocument, 0)

	inline, err := f.api.ListUserPolicies(ctx, &iam.ListUserPoliciesInput{UserName: aws.String(userName)})
	if err != nil {
		logging.LogWarn("Failed to list inline policies", map[string]interface{}{
			"identity": userName, "account": f.account, "error": err.Error(),
		})
		return docs
	}

	for _, policyName := range inline.PolicyNames {
		doc := domain.PolicyDocument{Name: policyName}
		policyOut, err := f.api.GetUserPolicy(ctx, &iam.GetUserPolicyInput{
			UserName:   aws.String(userName),
			PolicyName: aws.String(policyName),
		})
		if err == nil {
			doc.Raw = []byte(decodePolicyDocument(aws.ToString(policyOut.PolicyDocument)))
		}
		docs = append(docs, doc)
	}
	return docs
}

func (f *Fetcher) fetchGroups(ctx context.Context, userName string) []string {
	out, err := f.api.ListGroupsForUser(ctx, &iam.ListGroupsForUserInput{UserName: aws.String(userName)})
	if err != nil {
		logging.LogWarn("Failed to list groups", map[string]interface{}{
			"identity": userName, "account": f.account, "error": err.Error(),
		})
		return nil
	}
	groups := make([]string, 0, len(out.Groups))
	for _, group := range out.Groups {
		groups = append(groups, aws.ToString(group.GroupName))
	}
	return groups
}

func (f *Fetcher) fetchCredentials(ctx context.Context, userName string) []domain.CredentialRecord {
	out, err := f.api.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: aws.String(userName)})
	if err != nil {
		logging.LogWarn("Failed to list access keys", map[string]interface{}{
			"identity": userName, "account": f.account, "error": err.Error(),
		})
		return nil
	}

	creds := make([]domain.CredentialRecord, 0, len(out.AccessKeyMetadata))
	for _, key := range out.AccessKeyMetadata {
		rec := domain.CredentialRecord{
			ID:     aws.ToString(key.AccessKeyId),
			Active: key.Status == iamtypes.StatusTypeActive,
		}
		if key.CreateDate != nil {
			rec.CreatedAt = *key.CreateDate
		}
		lastUsed, err := f.api.GetAccessKeyLastUsed(ctx, &iam.GetAccessKeyLastUsedInput{
			AccessKeyId: key.AccessKeyId,
		})
		if err == nil && lastUsed.AccessKeyLastUsed != nil && lastUsed.AccessKeyLastUsed.LastUsedDate != nil {
			t := *lastUsed.AccessKeyLastUsed.LastUsedDate
			rec.LastUsed = &t
		}
		creds = append(creds, rec)
	}
	return creds
}

func (f *Fetcher) countMFADevices(ctx context.Context, userName string) int {
	out, err := f.api.ListMFADevices(ctx, &iam.ListMFADevicesInput{UserName: aws.String(userName)})
	if err != nil {
		return 0
	}
	return len(out.MFADevices)
}

func (f *Fetcher) hasLoginProfile(ctx context.Context, userName string) bool {
	_, err := f.api.GetLoginProfile(ctx, &iam.GetLoginProfileInput{UserName: aws.String(userName)})
	if err != nil {
		return false
	}
	return true
}

// decodePolicyDocument handles the URL-encoded form IAM returns for policy
// documents.
func decodePolicyDocument(doc string) string {
	if strings.HasPrefix(doc, "{") {
		return doc
	}
	decoded, err := url.QueryUnescape(doc)
	if err != nil {
		return doc
	}
	return decoded
}

func isNoSuchEntity(err error) bool {
	var nse *iamtypes.NoSuchEntityException
	return errors.As(err, &nse)
}
