package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	musicapi "github.com/theory-cloud/musicapi/runtime"

	"github.com/theory-cloud/musicapi/pkg/params"
	"github.com/theory-cloud/musicapi/pkg/schedule"
)

const (
	minLimit = 5
	maxLimit = 30

	messageMissingBody  = "Missing request body"
	messageBodyRequired = "Request body is required"
	messageInvalidRate  = "Invalid schedule rate format. Must be either 'rate(n units)' or a valid cron expression"
)

// lookup reads name and reports a missing or blank value as found == false.
func lookup(c *musicapi.Context, name string) (value string, found bool, err error) {
	value, err = c.Parameter(name)
	if errors.Is(err, params.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, strings.TrimSpace(value) != "", nil
}

func (h *handlers) put(c *musicapi.Context, name, value string, secure bool) error {
	if h.deps.Params == nil {
		return errors.New("handlers: no parameter store configured")
	}
	return h.deps.Params.PutParameter(c.Context(), name, value, params.PutOptions{Secure: secure})
}

func (h *handlers) getScheduleRate(c *musicapi.Context) (*musicapi.Response, error) {
	name, err := c.RequireEnv(EnvScheduleRateParameter, DefaultScheduleRateParameter)
	if err != nil {
		return nil, err
	}
	rate, found, err := lookup(c, name)
	if err != nil {
		return nil, err
	}
	if !found {
		c.Logger().Warn("Schedule rate parameter not found", map[string]any{"parameter": name})
		c.Metrics().Add("ParameterNotFound", 1)
		return nil, musicapi.NewNotFoundError("Schedule rate parameter not found")
	}
	c.Metrics().Add("RetrievalSuccess", 1)
	return c.Success(http.StatusOK, map[string]string{"rate": rate})
}

type scheduleRateBody struct {
	Rate string `json:"rate"`
}

func (h *handlers) setScheduleRate(c *musicapi.Context) (*musicapi.Response, error) {
	name, err := c.RequireEnv(EnvScheduleRateParameter, DefaultScheduleRateParameter)
	if err != nil {
		return nil, err
	}
	body, err := musicapi.DecodeJSON[scheduleRateBody](c, messageMissingBody)
	if err != nil {
		c.Metrics().Add("ValidationError", 1)
		return nil, err
	}
	if !schedule.Valid(body.Rate) {
		c.Logger().Warn("Invalid schedule rate format", map[string]any{"rate": body.Rate})
		c.Metrics().Add("ValidationError", 1)
		return nil, musicapi.NewValidationError(messageInvalidRate)
	}
	if err := h.put(c, name, body.Rate, false); err != nil {
		return nil, err
	}
	c.Logger().Info("Schedule rate updated successfully", map[string]any{"rate": body.Rate})
	c.Metrics().Add("UpdateSuccess", 1)
	return c.Success(http.StatusOK, map[string]string{
		"message": "Schedule rate updated successfully",
		"rate":    body.Rate,
	})
}

// limitSetting describes one of the numeric admin limits.
type limitSetting struct {
	env   string
	field string
	label string
}

var (
	songLimit  = limitSetting{env: EnvSongLimitParameter, field: "songLimit", label: "Song limit"}
	trackLimit = limitSetting{env: EnvTrackLimitParameter, field: "trackLimit", label: "Track limit"}
)

func (h *handlers) getLimit(s limitSetting) musicapi.Handler {
	return func(c *musicapi.Context) (*musicapi.Response, error) {
		name, err := c.RequireEnv(s.env)
		if err != nil {
			return nil, err
		}
		raw, found, err := lookup(c, name)
		if err != nil {
			return nil, err
		}
		if !found {
			c.Logger().Warn(s.label+" parameter not found", map[string]any{"parameter": name})
			c.Metrics().Add("ParameterNotFound", 1)
			return nil, musicapi.NewNotFoundError(s.label + " parameter not found")
		}
		n, err := parseLimit(raw)
		if err != nil {
			return nil, fmt.Errorf("%s parameter %s is not a number: %w", strings.ToLower(s.label), name, err)
		}
		c.Metrics().Add("RetrievalSuccess", 1)
		return c.Success(http.StatusOK, map[string]int{s.field: n})
	}
}

func (h *handlers) setLimit(s limitSetting) musicapi.Handler {
	return func(c *musicapi.Context) (*musicapi.Response, error) {
		name, err := c.RequireEnv(s.env)
		if err != nil {
			return nil, err
		}
		body, err := musicapi.DecodeJSON[map[string]json.RawMessage](c, messageBodyRequired)
		if err != nil {
			c.Metrics().Add("ValidationError", 1)
			return nil, err
		}
		var value float64
		if err := json.Unmarshal(body[s.field], &value); err != nil || value != math.Trunc(value) || value < minLimit || value > maxLimit {
			c.Logger().Warn("Invalid "+strings.ToLower(s.label)+" provided", map[string]any{s.field: string(body[s.field])})
			c.Metrics().Add("ValidationError", 1)
			return nil, musicapi.NewValidationError(fmt.Sprintf(
				"Invalid %s. Must be a number between %d and %d.", strings.ToLower(s.label), minLimit, maxLimit))
		}
		if err := h.put(c, name, strconv.Itoa(int(value)), false); err != nil {
			return nil, err
		}
		c.Metrics().Add("UpdateSuccess", 1)
		return c.Success(http.StatusOK, map[string]any{
			"message": s.label + " updated successfully",
			s.field:   value,
		})
	}
}

// parseLimit reads a stored limit, truncating values written as decimals by other tools.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return int(math.Trunc(f)), nil
}

func (h *handlers) getMUT(c *musicapi.Context) (*musicapi.Response, error) {
	name, err := c.RequireEnv(EnvMusicUserTokenParam)
	if err != nil {
		return nil, err
	}
	token, found, err := lookup(c, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, musicapi.NewNotFoundError("MUT not found")
	}
	c.Metrics().Add("MUTRetrievalSuccess", 1)
	return c.Success(http.StatusOK, map[string]string{"musicUserToken": token})
}

type mutBody struct {
	MusicUserToken string `json:"musicUserToken"`
}

func (h *handlers) setMUT(c *musicapi.Context) (*musicapi.Response, error) {
	name, err := c.RequireEnv(EnvMusicUserTokenParam)
	if err != nil {
		return nil, err
	}
	body, err := musicapi.DecodeJSON[mutBody](c, messageMissingBody)
	if err != nil {
		c.Metrics().Add("ValidationError", 1)
		return nil, err
	}
	if strings.TrimSpace(body.MusicUserToken) == "" {
		c.Metrics().Add("ValidationError", 1)
		return nil, musicapi.NewValidationError("Missing musicUserToken in request body")
	}
	if err := h.put(c, name, body.MusicUserToken, true); err != nil {
		return nil, err
	}
	c.Logger().Info("MUT stored successfully")
	c.Metrics().Add("UpdateSuccess", 1)
	return c.Success(http.StatusOK, map[string]string{"message": "MUT stored successfully"})
}
