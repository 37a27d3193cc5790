package awsiam

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// IdentitySummary is one row of the identities listing view.
type IdentitySummary struct {
	UserName  string    `json:"user_name"`
	ARN       string    `json:"arn"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleSummary is one row of the roles listing view.
type RoleSummary struct {
	RoleName    string    `json:"role_name"`
	ARN         string    `json:"arn"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicySummary is one row of the policies listing view.
type PolicySummary struct {
	PolicyName      string    `json:"policy_name"`
	ARN             string    `json:"arn"`
	AttachmentCount int32     `json:"attachment_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Directory serves the dashboard's read-only listing views for one account.
type Directory struct {
	api DirectoryAPI
}

func NewDirectory(api DirectoryAPI) *Directory {
	return &Directory{api: api}
}

// ListIdentities pages through every IAM user in the account.
func (d *Directory) ListIdentities(ctx context.Context) ([]IdentitySummary, error) {
	users := make([]IdentitySummary, 0)
	var marker *string
	for {
		out, err := d.api.ListUsers(ctx, &iam.ListUsersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		for _, user := range out.Users {
			summary := IdentitySummary{
				UserName: aws.ToString(user.UserName),
				ARN:      aws.ToString(user.Arn),
			}
			if user.CreateDate != nil {
				summary.CreatedAt = *user.CreateDate
			}
			users = append(users, summary)
		}
		if !out.IsTruncated {
			return users, nil
		}
		marker = out.Marker
	}
}

// ListRoles pages through every IAM role in the account.
func (d *Directory) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	roles := make([]RoleSummary, 0)
	var marker *string
	for {
		out, err := d.api.ListRoles(ctx, &iam.ListRolesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}
		for _, role := range out.Roles {
			summary := RoleSummary{
				RoleName:    aws.ToString(role.RoleName),
				ARN:         aws.ToString(role.Arn),
				Description: aws.ToString(role.Description),
			}
			if role.CreateDate != nil {
				summary.CreatedAt = *role.CreateDate
			}
			roles = append(roles, summary)
		}
		if !out.IsTruncated {
			return roles, nil
		}
		marker = out.Marker
	}
}

// ListPolicies pages through the account's customer-managed policies.
func (d *Directory) ListPolicies(ctx context.Context) ([]PolicySummary, error) {
	policies := make([]PolicySummary, 0)
	var marker *string
	for {
		out, err := d.api.ListPolicies(ctx, &iam.ListPoliciesInput{
			Scope:  iamtypes.PolicyScopeTypeLocal,
			Marker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list policies: %w", err)
		}
		for _, policy := range out.Policies {
			summary := PolicySummary{
				PolicyName: aws.ToString(policy.PolicyName),
				ARN:        aws.ToString(policy.Arn),
			}
			if policy.AttachmentCount != nil {
				summary.AttachmentCount = *policy.AttachmentCount
			}
			if policy.CreateDate != nil {
				summary.CreatedAt = *policy.CreateDate
			}
			policies = append(policies, summary)
		}
		if !out.IsTruncated {
			return policies, nil
		}
		marker = out.Marker
	}
}
