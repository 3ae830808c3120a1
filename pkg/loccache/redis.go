// Package loccache holds the latest known location per professional. Only
// the newest point is kept, and entries expire on their own: a stale
// position is worse than no position.
package loccache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/models"
)

const locationTTL = 15 * time.Minute

type Redis struct {
	log *logrus.Entry
	rdb *redis.Client
}

func NewRedis(log *logrus.Logger, rdb *redis.Client) *Redis {
	return &Redis{
		log: log.WithField("component", "loccache"),
		rdb: rdb,
	}
}

func (c *Redis) SetProfessionalLocation(ctx context.Context, loc models.ProfessionalLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("err encoding location for %s: %w", loc.ProfessionalID, err)
	}
	if err = c.rdb.Set(ctx, locationKey(loc.ProfessionalID), data, locationTTL).Err(); err != nil {
		return fmt.Errorf("err storing location for %s: %w", loc.ProfessionalID, err)
	}
	return nil
}

// GetProfessionalLocation returns nil without error when no fresh location
// is known, so callers can tell "unknown" apart from a real point.
func (c *Redis) GetProfessionalLocation(ctx context.Context, professionalID uuid.UUID) (*models.ProfessionalLocation, error) {
	data, err := c.rdb.Get(ctx, locationKey(professionalID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("err loading location for %s: %w", professionalID, err)
	}

	var loc models.ProfessionalLocation
	if err = json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("err decoding location for %s: %w", professionalID, err)
	}
	return &loc, nil
}

func locationKey(professionalID uuid.UUID) string {
	return "professional:location:" + professionalID.String()
}
