package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-router/internal/common/errors"
)

func TestNewRuleInput_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		in      NewRuleInput
		wantErr string
	}{
		{
			name: "valid allocate_next_n",
			in:   NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AllocateCount: intPtr(2), AuthFilter: AuthFilterAll},
		},
		{
			name: "valid unbounded transfer_ongoing",
			in:   NewRuleInput{RuleType: RuleTypeTransferOngoing, Target: TargetHuman, MatchText: "quero falar com atendente"},
		},
		{
			name: "valid with future expiry",
			in:   NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetBot, AuthFilter: AuthFilterUnauthenticated, ExpiresAt: &future},
		},
		{
			name:    "missing rule type",
			in:      NewRuleInput{Target: TargetN1ago, AuthFilter: AuthFilterAll},
			wantErr: "ruleType is required",
		},
		{
			name:    "unknown rule type",
			in:      NewRuleInput{RuleType: "round_robin", Target: TargetN1ago},
			wantErr: "ruleType must be one of: allocate_next_n, transfer_ongoing",
		},
		{
			name:    "unknown target",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: "robot", AuthFilter: AuthFilterAll},
			wantErr: "target must be one of: n1ago, human, bot",
		},
		{
			name:    "zero allocate count",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AllocateCount: intPtr(0), AuthFilter: AuthFilterAll},
			wantErr: "allocateCount must be at least 1",
		},
		{
			name:    "allocate count above bound",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AllocateCount: intPtr(MaxAllocateCount + 1), AuthFilter: AuthFilterAll},
			wantErr: "allocateCount must be at most 100000",
		},
		{
			name:    "unknown auth filter",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AuthFilter: "staff"},
			wantErr: "authFilter must be one of: all, authenticated, unauthenticated",
		},
		{
			name:    "allocate_next_n without auth filter",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago},
			wantErr: "authFilter is required for allocate_next_n rules",
		},
		{
			name:    "allocate_next_n with match text",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AuthFilter: AuthFilterAll, MatchText: "oi"},
			wantErr: "matchText is only allowed for transfer_ongoing rules",
		},
		{
			name:    "transfer_ongoing without match text",
			in:      NewRuleInput{RuleType: RuleTypeTransferOngoing, Target: TargetHuman},
			wantErr: "matchText is required for transfer_ongoing rules",
		},
		{
			name:    "transfer_ongoing with blank match text",
			in:      NewRuleInput{RuleType: RuleTypeTransferOngoing, Target: TargetHuman, MatchText: "   "},
			wantErr: "matchText is required for transfer_ongoing rules",
		},
		{
			name:    "transfer_ongoing with auth filter",
			in:      NewRuleInput{RuleType: RuleTypeTransferOngoing, Target: TargetHuman, MatchText: "oi", AuthFilter: AuthFilterAll},
			wantErr: "authFilter is only allowed for allocate_next_n rules",
		},
		{
			name:    "expiry in the past",
			in:      NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AuthFilter: AuthFilterAll, ExpiresAt: &past},
			wantErr: "expiresAt must be in the future",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := tt.in.Validate(now, Normalizer{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, rule)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, rule.ID)
			assert.True(t, rule.IsActive)
			assert.Equal(t, 0, rule.AllocatedCount)
			assert.Equal(t, tt.in.RuleType, rule.Type())
			assert.Equal(t, tt.in.Target, rule.Target)
			assert.Equal(t, now, rule.CreatedAt)
		})
	}
}

func TestNewRuleInput_ValidateNormalizesMatchText(t *testing.T) {
	in := NewRuleInput{
		RuleType:  RuleTypeTransferOngoing,
		Target:    TargetHuman,
		MatchText: "  Quero Falar  ",
		CreatedBy: "ops@example.com",
	}

	rule, err := in.Validate(time.Now(), Normalizer{FoldCase: true})
	require.NoError(t, err)
	assert.Equal(t, TransferOngoing{MatchText: "quero falar"}, rule.Criteria)
	assert.Equal(t, "ops@example.com", rule.CreatedBy)
}

func TestNewRuleInput_ValidateCopiesCap(t *testing.T) {
	limit := 3
	in := NewRuleInput{RuleType: RuleTypeAllocateNextN, Target: TargetN1ago, AuthFilter: AuthFilterAll, AllocateCount: &limit}

	rule, err := in.Validate(time.Now(), Normalizer{})
	require.NoError(t, err)

	limit = 99
	assert.Equal(t, 3, *rule.AllocateCount)
}
