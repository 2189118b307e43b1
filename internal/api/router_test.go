package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/app"
	iauth "github.com/adeelraza/floodcoord/internal/auth"
	"github.com/adeelraza/floodcoord/internal/cache"
	"github.com/adeelraza/floodcoord/internal/database"
	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/payment"
	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/mail"
)

const testSignature = "test-signature"

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]string // session id -> donation id
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]string)}
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, input payment.CheckoutInput) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("cs_test_%d", len(f.sessions)+1)
	f.sessions[id] = input.DonationID
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

// VerifyWebhook emulates provider signature checking: the payload is the
// application event encoded as JSON and only testSignature passes.
func (f *fakeProvider) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature != testSignature {
		return nil, errors.New("signature mismatch")
	}
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

type capturingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *capturingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *capturingMailer) lastBody(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	return m.messages[len(m.messages)-1].Body
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	mailer   *capturingMailer
	provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared&_foreign_keys=1", t.Name())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateAndSeed(db, database.BootstrapAdmin{
		Email:    "root@example.com",
		Username: "root",
		Password: "Sup3r!Secret",
	}))

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	mailer := &capturingMailer{}
	provider := newFakeProvider()

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "floodcoord"})
	require.NoError(t, err)

	challenges, err := iauth.NewChallengeService(store, iauth.ChallengeConfig{})
	require.NoError(t, err)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	auth, err := services.NewAuthService(db, users, challenges, jwtService, mailer)
	require.NoError(t, err)
	requests, err := services.NewHelpRequestService(db)
	require.NoError(t, err)
	donations, err := services.NewDonationService(db, provider)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, users, mailer)
	require.NoError(t, err)
	geography, err := services.NewGeographyService(db)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.RateLimit = 0

	router, err := NewRouter(Dependencies{
		DB:          db,
		Config:      cfg,
		JWT:         jwtService,
		Store:       store,
		Auth:        auth,
		Users:       users,
		Requests:    requests,
		Donations:   donations,
		Invitations: invitations,
		Geography:   geography,
		Provider:    provider,
	})
	require.NoError(t, err)

	return &testEnv{router: router, db: db, mailer: mailer, provider: provider}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func extractDigits(t *testing.T, body string, length int) string {
	t.Helper()
	for i := 0; i+length <= len(body); i++ {
		candidate := body[i : i+length]
		ok := true
		for _, c := range candidate {
			if c < '0' || c > '9' {
				ok = false
				break
			}
		}
		if ok {
			return candidate
		}
	}
	t.Fatal("no code found in message body")
	return ""
}

// login walks the full two-step flow and returns the access token.
func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()

	w, _ := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	code := extractDigits(t, e.mailer.lastBody(t), 6)

	w, env := e.do(t, http.MethodPost, "/api/auth/verify-otp", "", gin.H{
		"email": email,
		"code":  code,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.AccessToken)
	return result.AccessToken
}

func (e *testEnv) geography(t *testing.T) (provinceID, cityID string) {
	t.Helper()

	var city models.City
	require.NoError(t, e.db.First(&city, "name = ?", "Lahore").Error)
	return city.ProvinceID, city.ID
}

// Scenario: an anonymous help request travels through assignment to
// fulfilment by a volunteer account provisioned over the invitation chain.
func TestRequestLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	provinceID, cityID := env.geography(t)

	// Anonymous submission requires no token.
	w, data := env.do(t, http.MethodPost, "/api/helpRequest", "", gin.H{
		"requestor_name":  "Ahmed Khan",
		"requestor_phone": "+923001234567",
		"type":            "food",
		"description":     "Family of five stranded without supplies",
		"latitude":        31.52,
		"longitude":       74.35,
		"province_id":     provinceID,
		"city_id":         cityID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var request models.HelpRequest
	require.NoError(t, json.Unmarshal(data.Data, &request))
	require.Equal(t, models.StatusPending, request.Status)

	rootToken := env.login(t, "root@example.com", "Sup3r!Secret")

	// Invite a province admin and accept.
	w, data = env.do(t, http.MethodPost, "/api/invitations", rootToken, gin.H{
		"email":       "padmin@example.com",
		"role":        "province_admin",
		"province_id": provinceID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var invited struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(data.Data, &invited))

	w, _ = env.do(t, http.MethodPost, "/api/invitations/accept", "", gin.H{
		"token":     invited.Token,
		"username":  "padmin",
		"password":  "Valid#Pass1",
		"full_name": "Province Admin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	adminToken := env.login(t, "padmin@example.com", "Valid#Pass1")

	// Province admin invites a volunteer into a city of their province.
	w, data = env.do(t, http.MethodPost, "/api/invitations", adminToken, gin.H{
		"email":   "vol@example.com",
		"role":    "volunteer",
		"city_id": cityID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(data.Data, &invited))

	w, data = env.do(t, http.MethodPost, "/api/invitations/accept", "", gin.H{
		"token":    invited.Token,
		"username": "vol",
		"password": "Valid#Pass1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var volunteer models.User
	require.NoError(t, json.Unmarshal(data.Data, &volunteer))

	// Admin assigns the volunteer.
	w, data = env.do(t, http.MethodPost, "/api/helpRequest/"+request.ID+"/assign", adminToken, gin.H{
		"volunteer_id": volunteer.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(data.Data, &request))
	require.Equal(t, models.StatusInProgress, request.Status)
	require.Equal(t, models.AssignmentAssigned, request.AssignmentStatus)

	// The volunteer sees the request in their city and fulfils it.
	volToken := env.login(t, "vol@example.com", "Valid#Pass1")

	w, _ = env.do(t, http.MethodGet, "/api/helpRequest/"+request.ID, volToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, data = env.do(t, http.MethodPut, "/api/helpRequest/"+request.ID+"/status", volToken, gin.H{
		"status": "fulfilled",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(data.Data, &request))
	require.Equal(t, models.StatusFulfilled, request.Status)
}

// Scenario: a cash donation settles asynchronously through the webhook and a
// duplicate delivery changes nothing.
func TestDonationSettlementEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	w, data := env.do(t, http.MethodPost, "/api/donations", "", gin.H{
		"donor_name":           "Fatima Ali",
		"donor_account_number": "PK36SCBL0000001123456702",
		"email":                "fatima@example.com",
		"type":                 "cash",
		"amount":               250_000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Donation    models.Donation `json:"donation"`
		CheckoutURL string          `json:"checkout_url"`
	}
	require.NoError(t, json.Unmarshal(data.Data, &created))
	require.NotEmpty(t, created.CheckoutURL)
	require.Equal(t, models.DonationPending, created.Donation.Status)

	event := gin.H{
		"Type":       payment.EventSessionCompleted,
		"DonationID": created.Donation.ID,
	}

	// A bad signature is rejected outright.
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/donations/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "bogus")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	deliver := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/donations/webhook", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", testSignature)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, deliver().Code)

	var settled models.Donation
	require.NoError(t, env.db.First(&settled, "id = ?", created.Donation.ID).Error)
	require.Equal(t, models.DonationApproved, settled.Status)
	require.NotEmpty(t, settled.ReceiptNumber)

	// Duplicate delivery is acknowledged without changes.
	require.Equal(t, http.StatusOK, deliver().Code)

	var after models.Donation
	require.NoError(t, env.db.First(&after, "id = ?", created.Donation.ID).Error)
	require.Equal(t, settled.ReceiptNumber, after.ReceiptNumber)
	require.Equal(t, settled.Version, after.Version)

	// Public self-service lookup.
	w, _ = env.do(t, http.MethodGet, "/api/donations/by-account/PK36SCBL0000001123456702", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestScopeContainmentOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	var lahore, karachi models.City
	require.NoError(t, env.db.First(&lahore, "name = ?", "Lahore").Error)
	require.NoError(t, env.db.First(&karachi, "name = ?", "Karachi").Error)

	submit := func(provinceID, cityID string) {
		w, _ := env.do(t, http.MethodPost, "/api/helpRequest", "", gin.H{
			"requestor_name":  "Requester",
			"requestor_phone": "03001234567",
			"type":            "medical",
			"description":     "Medical assistance needed urgently",
			"latitude":        30.0,
			"longitude":       70.0,
			"province_id":     provinceID,
			"city_id":         cityID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	submit(lahore.ProvinceID, lahore.ID)
	submit(karachi.ProvinceID, karachi.ID)

	rootToken := env.login(t, "root@example.com", "Sup3r!Secret")

	// Invite and provision a Punjab admin.
	w, data := env.do(t, http.MethodPost, "/api/invitations", rootToken, gin.H{
		"email":       "punjab@example.com",
		"role":        "province_admin",
		"province_id": lahore.ProvinceID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var invited struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(data.Data, &invited))
	w, _ = env.do(t, http.MethodPost, "/api/invitations/accept", "", gin.H{
		"token":    invited.Token,
		"password": "Valid#Pass1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	adminToken := env.login(t, "punjab@example.com", "Valid#Pass1")

	// The super admin sees both requests, the Punjab admin only one.
	w, env2 := env.do(t, http.MethodGet, "/api/helpRequest", rootToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []models.HelpRequest
	require.NoError(t, json.Unmarshal(env2.Data, &all))
	require.Len(t, all, 2)

	w, env2 = env.do(t, http.MethodGet, "/api/helpRequest", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var scoped []models.HelpRequest
	require.NoError(t, json.Unmarshal(env2.Data, &scoped))
	require.Len(t, scoped, 1)
	require.Equal(t, lahore.ProvinceID, *scoped[0].ProvinceID)

	// Donors hold no administrative geography; unauthenticated listing fails.
	w, _ = env.do(t, http.MethodGet, "/api/helpRequest", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	_, cityID := env.geography(t)

	rootToken := env.login(t, "root@example.com", "Sup3r!Secret")

	// Root cannot invite volunteers directly.
	w, _ := env.do(t, http.MethodPost, "/api/invitations", rootToken, gin.H{
		"email":   "vol@example.com",
		"role":    "volunteer",
		"city_id": cityID,
	})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	// Unknown routes produce the JSON not-found envelope.
	w, _ = env.do(t, http.MethodGet, "/api/nope", rootToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// Health and provinces are public.
	w, _ = env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, "/api/provinces", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
