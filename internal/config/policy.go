package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	MinInvitationTTL = 24 * time.Hour
	MaxInvitationTTL = 7 * 24 * time.Hour
)

// Policy holds the tunables of the invitation workflow. It is reloaded from
// policy.yml without a restart.
type Policy struct {
	InvitationTTL           time.Duration `mapstructure:"invitationTTL"`
	RequireEmailMatch       bool          `mapstructure:"requireEmailMatch"`
	TokenMaxAttempts        int           `mapstructure:"tokenMaxAttempts"`
	ReferralCodeMaxAttempts int           `mapstructure:"referralCodeMaxAttempts"`
	ReferralCodeLength      int           `mapstructure:"referralCodeLength"`
	StatusCacheTTL          time.Duration `mapstructure:"statusCacheTTL"`
	MaxStatusGraphIDs       int           `mapstructure:"maxStatusGraphIds"`
	OutboxMaxAttempts       int           `mapstructure:"outboxMaxAttempts"`
	OutboxBackoffBase       time.Duration `mapstructure:"outboxBackoffBase"`
	OutboxBackoffMax        time.Duration `mapstructure:"outboxBackoffMax"`
}

func DefaultPolicy() Policy {
	return Policy{
		InvitationTTL:           MaxInvitationTTL,
		RequireEmailMatch:       true,
		TokenMaxAttempts:        5,
		ReferralCodeMaxAttempts: 5,
		ReferralCodeLength:      6,
		StatusCacheTTL:          30 * time.Second,
		MaxStatusGraphIDs:       100,
		OutboxMaxAttempts:       8,
		OutboxBackoffBase:       30 * time.Second,
		OutboxBackoffMax:        time.Hour,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("policy")
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	if p := strings.TrimSpace(cfg.PolicyPath); p != "" {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("/etc/ambassador")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AMBASSADOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("invitation.invitationTTL", defaults.InvitationTTL)
	v.SetDefault("invitation.requireEmailMatch", defaults.RequireEmailMatch)
	v.SetDefault("invitation.tokenMaxAttempts", defaults.TokenMaxAttempts)
	v.SetDefault("invitation.referralCodeMaxAttempts", defaults.ReferralCodeMaxAttempts)
	v.SetDefault("invitation.referralCodeLength", defaults.ReferralCodeLength)
	v.SetDefault("invitation.statusCacheTTL", defaults.StatusCacheTTL)
	v.SetDefault("invitation.maxStatusGraphIds", defaults.MaxStatusGraphIDs)
	v.SetDefault("invitation.outboxMaxAttempts", defaults.OutboxMaxAttempts)
	v.SetDefault("invitation.outboxBackoffBase", defaults.OutboxBackoffBase)
	v.SetDefault("invitation.outboxBackoffMax", defaults.OutboxBackoffMax)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy Policy
	if err := v.UnmarshalKey("invitation", &policy); err != nil {
		return nil, err
	}
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileFound {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("invitation", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := ValidatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func ValidatePolicy(p Policy) error {
	if p.InvitationTTL < MinInvitationTTL || p.InvitationTTL > MaxInvitationTTL {
		return fmt.Errorf("invitation.invitationTTL must be between %s and %s", MinInvitationTTL, MaxInvitationTTL)
	}
	if p.TokenMaxAttempts <= 0 {
		return errors.New("invitation.tokenMaxAttempts must be positive")
	}
	if p.ReferralCodeMaxAttempts <= 0 {
		return errors.New("invitation.referralCodeMaxAttempts must be positive")
	}
	if p.ReferralCodeLength < 4 || p.ReferralCodeLength > 16 {
		return errors.New("invitation.referralCodeLength must be between 4 and 16")
	}
	if p.MaxStatusGraphIDs <= 0 {
		return errors.New("invitation.maxStatusGraphIds must be positive")
	}
	if p.OutboxMaxAttempts <= 0 {
		return errors.New("invitation.outboxMaxAttempts must be positive")
	}
	if p.OutboxBackoffBase <= 0 || p.OutboxBackoffMax < p.OutboxBackoffBase {
		return errors.New("invitation.outboxBackoff must satisfy 0 < base <= max")
	}
	return nil
}
