package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/auth"
	"github.com/openexposure/gaen-server/internal/config"
	"github.com/openexposure/gaen-server/internal/errs"
	"github.com/openexposure/gaen-server/internal/export"
	"github.com/openexposure/gaen-server/internal/insertmanager"
	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
	"github.com/openexposure/gaen-server/internal/validation"
)

const (
	headerKeyBundleTag = "x-key-bundle-tag"
	helloBody          = "Hello from DP3T WS GAEN V2-UMA"
)

// KeyReader is the read side of a key store; the fake-key store only ever
// serves reads here.
type KeyReader interface {
	GetSortedExposedSince(ctx context.Context, since, now utc.UTCInstant, visitedCountries, originCountries []string) ([]model.GaenKey, error)
}

// Controller owns all GAEN endpoints.
type Controller struct {
	cfg       *config.Config
	clock     utc.Clock
	utils     *validation.Utils
	verifier  auth.Verifier
	issuer    *auth.NextDayIssuer
	exposed   *insertmanager.Manager
	nextDay   *insertmanager.Manager
	keys      repository.KeyStore
	fakeKeys  KeyReader // nil when padding is disabled
	assembler *export.Assembler
	log       *zap.Logger
}

// ControllerOptions wires the controller's collaborators.
type ControllerOptions struct {
	Config    *config.Config
	Clock     utc.Clock
	Utils     *validation.Utils
	Verifier  auth.Verifier
	Issuer    *auth.NextDayIssuer
	Exposed   *insertmanager.Manager
	NextDay   *insertmanager.Manager
	Keys      repository.KeyStore
	FakeKeys  KeyReader
	Assembler *export.Assembler
	Logger    *zap.Logger
}

// NewController builds the controller.
func NewController(opts ControllerOptions) *Controller {
	return &Controller{
		cfg:       opts.Config,
		clock:     opts.Clock,
		utils:     opts.Utils,
		verifier:  opts.Verifier,
		issuer:    opts.Issuer,
		exposed:   opts.Exposed,
		nextDay:   opts.NextDay,
		keys:      opts.Keys,
		fakeKeys:  opts.FakeKeys,
		assembler: opts.Assembler,
		log:       opts.Logger,
	}
}

// Routes mounts all endpoints on a fresh router.
func (c *Controller) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger(c.log), recoverer(c.log))

	for _, base := range []string{"/v1/gaen", "/v2/gaen", "/v2UMA/gaen"} {
		r.Get(base, c.hello)
	}

	r.With(c.requireAuth).Post("/v1/gaen/exposed", c.uploadV1)
	r.With(c.requireAuth).Post("/v1/gaen/exposednextday", c.uploadNextDay)
	r.With(c.requireAuth).Post("/v2/gaen/exposed", c.uploadV2)
	r.With(c.requireAuth).Post("/v2UMA/gaen/exposed", c.uploadV2)

	r.Get("/v1/gaen/exposed/{batchReleaseTime}", c.downloadV1)
	r.Get("/v2/gaen/exposed", c.downloadProto)
	r.Get("/v2UMA/gaen/exposed", c.downloadUMA)

	return r
}

func (c *Controller) hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-HELLO", "dp3t")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(helloBody))
}

// uploadV1 accepts keys plus a delayedKeyDate and answers with the JWT the
// client needs tomorrow.
func (c *Controller) uploadV1(w http.ResponseWriter, r *http.Request) {
	arrival := c.clock.Now()
	var req model.UploadRequestV1
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	delayedDay, err := utc.FromTenMinutes(req.DelayedKeyDate)
	if err != nil || !c.isAcceptableDelayedKeyDate(delayedDay, arrival) {
		c.writeError(w, errs.ErrInvalidDate)
		return
	}

	p := auth.PrincipalFromCtx(r.Context())
	if err := c.exposed.InsertIntoDatabase(r.Context(), req.GaenKeys, r.UserAgent(), p, arrival); err != nil {
		c.writeError(w, err)
		return
	}

	token, err := c.issuer.Issue(req.DelayedKeyDate, p != nil && p.Fake)
	if err != nil {
		c.writeError(w, err)
		return
	}

	c.levelResponseTime(r.Context(), arrival)
	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// uploadNextDay accepts the single key announced by yesterday's V1 upload.
func (c *Controller) uploadNextDay(w http.ResponseWriter, r *http.Request) {
	arrival := c.clock.Now()
	var req model.UploadRequestNextDay
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	key := req.DelayedKey
	if req.Fake == 1 {
		key.Fake = 1
	}

	p := auth.PrincipalFromCtx(r.Context())
	if err := c.nextDay.InsertIntoDatabase(r.Context(), []model.GaenKey{key}, r.UserAgent(), p, arrival); err != nil {
		c.writeError(w, err)
		return
	}

	c.levelResponseTime(r.Context(), arrival)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// uploadV2 serves both /v2 and /v2UMA uploads; the pipeline is identical.
func (c *Controller) uploadV2(w http.ResponseWriter, r *http.Request) {
	arrival := c.clock.Now()
	var req model.UploadRequestV2
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p := auth.PrincipalFromCtx(r.Context())
	if err := c.exposed.InsertIntoDatabase(r.Context(), req.GaenKeys, r.UserAgent(), p, arrival); err != nil {
		c.writeError(w, err)
		return
	}

	c.levelResponseTime(r.Context(), arrival)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// downloadV1 serves the path-tagged variant; semantics match the query-tagged
// downloads.
func (c *Controller) downloadV1(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "batchReleaseTime")
	tag, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.serveDownload(w, r, &tag, nil, nil, false)
}

func (c *Controller) downloadProto(w http.ResponseWriter, r *http.Request) {
	tag, ok := parseOptionalTag(w, r)
	if !ok {
		return
	}
	c.serveDownload(w, r, tag, nil, nil, false)
}

func (c *Controller) downloadUMA(w http.ResponseWriter, r *http.Request) {
	tag, ok := parseOptionalTag(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	c.serveDownload(w, r, tag, q["visitedCountries"], q["originCountries"], true)
}

func parseOptionalTag(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("lastKeyBundleTag")
	if raw == "" {
		return nil, true
	}
	tag, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return &tag, true
}

// serveDownload implements the batch-release protocol shared by all download
// variants.
func (c *Controller) serveDownload(w http.ResponseWriter, r *http.Request, lastTag *int64, visited, origins []string, uma bool) {
	now := c.clock.Now()
	bucket := c.cfg.ReleaseBucketDuration

	minTag := now.Minus(c.cfg.Retention()).BucketStart(bucket)
	since := minTag
	if lastTag != nil && *lastTag >= minTag.Timestamp() {
		since = utc.OfEpochMillis(*lastTag)
	}

	if !c.utils.IsValidBatchReleaseTime(since, now) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	keyBundleTag := now.BucketStart(bucket)
	expires := now.NextBucket(bucket)

	keys, err := c.collectKeys(r.Context(), since, now, visited, origins)
	if err != nil {
		c.writeError(w, err)
		return
	}

	w.Header().Set(headerKeyBundleTag, strconv.FormatInt(keyBundleTag.Timestamp(), 10))
	w.Header().Set("Expires", expires.Time().Format(http.TimeFormat))

	if len(keys) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var blob []byte
	if uma {
		blob, err = c.assembler.BuildUMAZip(keys)
	} else {
		blob, err = c.assembler.BuildProtoZip(keys, since, keyBundleTag)
	}
	if err != nil {
		c.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(c.cfg.ExposedListCacheControl/time.Second)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (c *Controller) collectKeys(ctx context.Context, since, now utc.UTCInstant, visited, origins []string) ([]model.GaenKey, error) {
	keys, err := c.keys.GetSortedExposedSince(ctx, since, now, visited, origins)
	if err != nil {
		return nil, err
	}
	if c.fakeKeys == nil {
		return keys, nil
	}
	padding, err := c.fakeKeys.GetSortedExposedSince(ctx, since, now, visited, origins)
	if err != nil {
		return nil, err
	}
	return append(keys, padding...), nil
}

// isAcceptableDelayedKeyDate bounds the announced day to yesterday..tomorrow.
func (c *Controller) isAcceptableDelayedKeyDate(delayed, now utc.UTCInstant) bool {
	day := delayed.StartOfDay()
	today := now.StartOfDay()
	return !day.Before(today.Minus(24*time.Hour)) && !day.After(today.Plus(24*time.Hour))
}

// levelResponseTime holds the response until arrival+requestTime so upload
// latency does not reveal whether work was done.
func (c *Controller) levelResponseTime(ctx context.Context, arrival utc.UTCInstant) {
	elapsed := time.Duration(c.clock.Now().Timestamp()-arrival.Timestamp()) * time.Millisecond
	remaining := c.cfg.RequestTime - elapsed
	if remaining <= 0 {
		return
	}
	select {
	case <-time.After(remaining):
	case <-ctx.Done():
	}
}

func (c *Controller) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrAuthFailure),
		errors.Is(err, errs.ErrWrongScope):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, errs.ErrBadKeyFormat),
		errors.Is(err, errs.ErrClaimIsBeforeOnset),
		errors.Is(err, errs.ErrInvalidDate),
		errors.Is(err, errs.ErrInvalidRollingPeriod),
		errors.Is(err, errs.ErrBadBatchReleaseTime):
		w.WriteHeader(http.StatusBadRequest)
	default:
		c.log.Error("request failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
