// Package locations reads the storefronts eligible for a catalog sync.
package locations

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/greenline/possync/internal/pos"
)

// ErrMissingConfig marks a location that cannot be synced until an operator fixes it.
var ErrMissingConfig = errors.New("missing configuration")

// POSConfig is the vendor connection stored as JSON on the location row.
type POSConfig struct {
	BaseURL string `json:"baseUrl" validate:"required,url"`
	APIKey  string `json:"apiKey" validate:"required"`
	RoomID  string `json:"roomId,omitempty"`
}

// Location is the read-only view of a storefront used by the sync.
type Location struct {
	ID             int64
	OrganizationID int64
	Name           string
	Vendor         string
	POSID          string
	Config         *POSConfig
	Deleted        bool
}

// Filter narrows the eligible set.
type Filter struct {
	Vendor      string
	LocationIDs []int64
}

var validate = validator.New()

// CheckConfig reports which pieces of POS configuration are missing.
// The returned error wraps ErrMissingConfig.
func (l Location) CheckConfig() error {
	var missing []string
	if strings.TrimSpace(l.POSID) == "" {
		missing = append(missing, "pos id")
	}
	if l.Config == nil {
		missing = append(missing, "pos config")
	} else if err := validate.Struct(l.Config); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			missing = append(missing, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
}

// Target converts the location into the remote request parameters.
// Callers must run CheckConfig first.
func (l Location) Target() pos.Target {
	t := pos.Target{LocationID: l.ID, PosID: strings.TrimSpace(l.POSID)}
	if l.Config != nil {
		t.BaseURL = strings.TrimSpace(l.Config.BaseURL)
		t.APIKey = l.Config.APIKey
		t.RoomID = strings.TrimSpace(l.Config.RoomID)
	}
	return t
}
