package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ycheng-dev/channelhub/internal/moderation"
)

const (
	DefaultReferenceTZ   = "Asia/Shanghai"
	DefaultSweepInterval = 10 * time.Second
)

// Params carries the raw, unvalidated inputs from flags and the
// environment.
type Params struct {
	ServerAddr       string
	MongoURI         string
	Database         string
	Base64Secret     string
	AllowedOrigins   []string
	SweepInterval    time.Duration
	ReferenceTZ      string
	ModerationLevel  string
	AlertInterval    time.Duration
	AlertMaxDuration time.Duration
}

type Config struct {
	ServerAddr       string
	MongoURI         string
	Database         string
	SigningKey       []byte
	AllowedOrigins   []string
	SweepInterval    time.Duration
	ReferenceTZ      *time.Location
	ModerationLevel  moderation.Level
	AlertInterval    time.Duration
	AlertMaxDuration time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.MongoURI == "" {
		return nil, fmt.Errorf("mongo URI cannot be empty")
	}
	if p.Database == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}
	if p.Base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(p.Base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if p.ReferenceTZ == "" {
		p.ReferenceTZ = DefaultReferenceTZ
	}
	loc, err := time.LoadLocation(p.ReferenceTZ)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone: %w", err)
	}

	if p.SweepInterval <= 0 {
		p.SweepInterval = DefaultSweepInterval
	}

	var level moderation.Level
	switch p.ModerationLevel {
	case "", string(moderation.LevelModerate):
		level = moderation.LevelModerate
	case string(moderation.LevelStrict):
		level = moderation.LevelStrict
	case string(moderation.LevelLoose):
		level = moderation.LevelLoose
	default:
		return nil, fmt.Errorf("unknown moderation level %q", p.ModerationLevel)
	}

	return &Config{
		ServerAddr:       p.ServerAddr,
		MongoURI:         p.MongoURI,
		Database:         p.Database,
		SigningKey:       signingKey,
		AllowedOrigins:   p.AllowedOrigins,
		SweepInterval:    p.SweepInterval,
		ReferenceTZ:      loc,
		ModerationLevel:  level,
		AlertInterval:    p.AlertInterval,
		AlertMaxDuration: p.AlertMaxDuration,
	}, nil
}
