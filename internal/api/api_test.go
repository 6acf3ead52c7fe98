package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/propbook-app/propbook/internal/auth"
	"github.com/propbook-app/propbook/internal/db"
	"github.com/propbook-app/propbook/internal/model"
	"github.com/propbook-app/propbook/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB, string) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin", string(hash), "CW2", model.RoleAdmin)

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}

	return server, database, token
}

// apiUser creates a user directly in the store and returns it with a
// valid token.
func apiUser(t *testing.T, database *sql.DB, username, role string) (*model.User, string) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.DefaultCost)
	user, err := store.CreateUser(context.Background(), database, username, string(hash), "SGT", role)
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	token, err := auth.GenerateToken(testJWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return user, token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doJSON(t *testing.T, req *http.Request, wantStatus int, target any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d", req.Method, req.URL.Path, wantStatus, resp.StatusCode)
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server, _, token := setupTestServer(t)

	req, _ := authRequest("POST", server.URL+"/api/auth/logout", token, nil)
	doJSON(t, req, http.StatusOK, nil)

	// The token no longer works.
	req, _ = authRequest("GET", server.URL+"/api/properties", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, _ := http.Get(server.URL + "/api/properties")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, database, _ := setupTestServer(t)

	_, userToken := apiUser(t, database, "private", model.RoleUser)

	// Regular user cannot register properties (manager+ required).
	req, _ := authRequest("POST", server.URL+"/api/properties", userToken, map[string]string{
		"name": "Radio", "serial_number": "R-1",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user registering property, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Regular user cannot record corrections.
	req, _ = authRequest("POST", server.URL+"/api/corrections", userToken, map[string]string{
		"original_event_id": "x", "original_event_type": "external", "reason": "typo",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user recording correction, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Regular user cannot access /api/users.
	req, _ = authRequest("GET", server.URL+"/api/users", userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTransferAPIFlow(t *testing.T) {
	server, database, adminToken := setupTestServer(t)

	sender, senderToken := apiUser(t, database, "sender", model.RoleUser)
	recipient, recipientToken := apiUser(t, database, "recipient", model.RoleUser)
	_, bystanderToken := apiUser(t, database, "bystander", model.RoleUser)

	// Register a property to the sender.
	var property model.Property
	req, _ := authRequest("POST", server.URL+"/api/properties", adminToken, map[string]any{
		"name":          "M4 Carbine",
		"serial_number": "M4-1001",
		"assigned_to":   sender.ID,
	})
	doJSON(t, req, http.StatusCreated, &property)

	// Sender opens a transfer to the recipient.
	var transfer model.Transfer
	req, _ = authRequest("POST", server.URL+"/api/transfers", senderToken, map[string]any{
		"serial_number": property.SerialNumber,
		"to_user_id":    recipient.ID,
	})
	doJSON(t, req, http.StatusCreated, &transfer)
	if transfer.Status != model.TransferPending {
		t.Fatalf("expected pending transfer, got %s", transfer.Status)
	}

	decisionURL := server.URL + "/api/transfers/" + itoa(transfer.ID) + "/decision"

	// A bystander cannot decide it.
	req, _ = authRequest("POST", decisionURL, bystanderToken, map[string]string{"decision": "approve"})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-recipient decision, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Rejecting without a reason fails.
	req, _ = authRequest("POST", decisionURL, recipientToken, map[string]string{"decision": "reject"})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for reject without reason, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The recipient's approval inbox shows it.
	var pending []model.Transfer
	req, _ = authRequest("GET", server.URL+"/api/transfers/pending", recipientToken, nil)
	doJSON(t, req, http.StatusOK, &pending)
	if len(pending) != 1 || pending[0].ID != transfer.ID {
		t.Fatalf("expected the pending transfer in the inbox, got %+v", pending)
	}

	// The recipient approves.
	var decided model.Transfer
	req, _ = authRequest("POST", decisionURL, recipientToken, map[string]string{"decision": "approve"})
	doJSON(t, req, http.StatusOK, &decided)
	if decided.Status != model.TransferApproved {
		t.Fatalf("expected approved, got %s", decided.Status)
	}

	// Deciding again conflicts.
	req, _ = authRequest("POST", decisionURL, recipientToken, map[string]string{"decision": "approve"})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for double decision, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The ledger shows registration then transfer for the serial.
	var history []model.LedgerEntry
	req, _ = authRequest("GET", server.URL+"/api/ledger/serial/"+property.SerialNumber, adminToken, nil)
	doJSON(t, req, http.StatusOK, &history)
	if len(history) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(history))
	}
	if history[0].EventType != model.EventPropertyRegistered || history[1].EventType != model.EventTransfer {
		t.Errorf("unexpected event order: %s, %s", history[0].EventType, history[1].EventType)
	}

	// The ledger names the recipient as holder.
	var holder map[string]any
	req, _ = authRequest("GET", server.URL+"/api/ledger/serial/"+property.SerialNumber+"/holder", adminToken, nil)
	doJSON(t, req, http.StatusOK, &holder)
	if int64(holder["holder_id"].(float64)) != recipient.ID {
		t.Errorf("expected holder %d, got %v", recipient.ID, holder["holder_id"])
	}
}

func TestCorrectionAPIFlow(t *testing.T) {
	server, database, adminToken := setupTestServer(t)

	owner, _ := apiUser(t, database, "owner", model.RoleUser)

	// Register a property so the ledger has an entry to correct.
	var property model.Property
	req, _ := authRequest("POST", server.URL+"/api/properties", adminToken, map[string]any{
		"name":          "Night Vision Goggles",
		"serial_number": "NVG-7",
		"assigned_to":   owner.ID,
	})
	doJSON(t, req, http.StatusCreated, &property)

	var history []model.LedgerEntry
	req, _ = authRequest("GET", server.URL+"/api/ledger/serial/NVG-7", adminToken, nil)
	doJSON(t, req, http.StatusOK, &history)
	if len(history) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(history))
	}
	original := history[0]

	// Correcting a ledger-recorded event that does not exist is a 404.
	req, _ = authRequest("POST", server.URL+"/api/corrections", adminToken, map[string]string{
		"original_event_id":   "no-such-entry",
		"original_event_type": model.EventPropertyRegistered,
		"reason":              "serial number mistyped",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown original, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A missing reason is a 400.
	req, _ = authRequest("POST", server.URL+"/api/corrections", adminToken, map[string]string{
		"original_event_id":   original.TxID,
		"original_event_type": original.EventType,
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing reason, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Record a correction against the registration.
	var correction model.CorrectionEvent
	req, _ = authRequest("POST", server.URL+"/api/corrections", adminToken, map[string]string{
		"original_event_id":   original.TxID,
		"original_event_type": original.EventType,
		"reason":              "serial number mistyped",
	})
	doJSON(t, req, http.StatusCreated, &correction)
	if correction.LedgerTxID == nil || correction.LedgerSeq == nil {
		t.Fatal("expected correction to be linked to its ledger entry")
	}

	// It folds under the original event.
	var corrections []model.CorrectionEvent
	req, _ = authRequest("GET", server.URL+"/api/events/"+original.TxID+"/corrections", adminToken, nil)
	doJSON(t, req, http.StatusOK, &corrections)
	if len(corrections) != 1 || corrections[0].EventID != correction.EventID {
		t.Fatalf("expected the recorded correction, got %+v", corrections)
	}

	// And is retrievable by id.
	var fetched model.CorrectionEvent
	req, _ = authRequest("GET", server.URL+"/api/corrections/"+correction.EventID, adminToken, nil)
	doJSON(t, req, http.StatusOK, &fetched)
	if fetched.Reason != "serial number mistyped" {
		t.Errorf("unexpected reason %q", fetched.Reason)
	}

	// The original ledger entry is untouched.
	var entry model.LedgerEntry
	req, _ = authRequest("GET", server.URL+"/api/ledger/"+original.TxID, adminToken, nil)
	doJSON(t, req, http.StatusOK, &entry)
	if entry.EventType != original.EventType || !bytes.Equal(entry.Payload, original.Payload) {
		t.Error("original ledger entry changed after correction")
	}
}

func TestHandoffAPIFlow(t *testing.T) {
	server, database, adminToken := setupTestServer(t)

	holder, holderToken := apiUser(t, database, "holder", model.RoleUser)
	_, scannerToken := apiUser(t, database, "scanner", model.RoleUser)

	var property model.Property
	req, _ := authRequest("POST", server.URL+"/api/properties", adminToken, map[string]any{
		"name":          "Compass",
		"serial_number": "C-42",
		"assigned_to":   holder.ID,
	})
	doJSON(t, req, http.StatusCreated, &property)

	handoffURL := server.URL + "/api/properties/" + itoa(property.ID) + "/handoff"

	// Only the holder may mint a code.
	req, _ = authRequest("POST", handoffURL, scannerToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-holder minting, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var handoff handoffResponse
	req, _ = authRequest("POST", handoffURL, holderToken, nil)
	doJSON(t, req, http.StatusOK, &handoff)
	if handoff.Code == "" || len(handoff.PNG) == 0 {
		t.Fatal("expected a code and rendered PNG")
	}

	// Scanning the code opens a pending transfer to the scanner.
	var transfer model.Transfer
	req, _ = authRequest("POST", server.URL+"/api/transfers/handoff", scannerToken, map[string]string{
		"code": handoff.Code,
	})
	doJSON(t, req, http.StatusCreated, &transfer)
	if transfer.Status != model.TransferPending || transfer.FromUserID != holder.ID {
		t.Fatalf("unexpected transfer from hand-off: %+v", transfer)
	}

	// A tampered code is rejected.
	req, _ = authRequest("POST", server.URL+"/api/transfers/handoff", scannerToken, map[string]string{
		"code": "x" + handoff.Code[1:],
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for tampered code, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
