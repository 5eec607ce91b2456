package nakama

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"mjscore/internal/app"
	"mjscore/internal/config"
	"mjscore/internal/report"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// gRPC status codes used by runtime errors.
const (
	codeInvalidArgument  = 3
	codeNotFound         = 5
	codePermissionDenied = 7
	codeInternal         = 13
	codeUnauthenticated  = 16
)

var tableIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// shareService signs share tokens; built from the runtime env on first use when unset.
var shareService *app.ShareService

// OpenTableResponse is returned to clients opening a score table.
type OpenTableResponse struct {
	MatchID string `json:"match_id"`
	TableID string `json:"table_id"`
	IsNew   bool   `json:"is_new"`
}

type shareTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type exportResponse struct {
	TableID  string `json:"table_id"`
	FileName string `json:"file_name"`
	CSV      string `json:"csv"`
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcOpenTable, RpcOpenTableHandler); err != nil {
		return err
	}
	if err := initializer.RegisterRpc(RpcShareToken, RpcShareTokenHandler); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcExportHistory, RpcExportHistoryHandler)
}

// RpcOpenTableHandler resumes the match hosting a table or creates one. The first caller to
// open a table id becomes its owner; other users get PERMISSION_DENIED.
//
// Payload: {"table_id": "..."}; an empty table id creates a fresh table.
func RpcOpenTableHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("Authentication required", codeUnauthenticated)
	}

	var req struct {
		TableID string `json:"table_id"`
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("Invalid payload", codeInvalidArgument)
		}
	}
	if req.TableID == "" {
		req.TableID = uuid.NewString()
	}
	if !tableIDPattern.MatchString(req.TableID) {
		return "", runtime.NewError("Invalid table id", codeInvalidArgument)
	}

	store := NewNakamaBlobStore(nk, envValue(ctx, EnvStorageCollection), req.TableID)
	if _, err := store.ClaimOwner(ctx, userID); err != nil {
		if errors.Is(err, errOwnerTaken) {
			logger.Warn("RpcOpenTable [User:%s]: Table %s belongs to another user", userID, req.TableID)
			return "", runtime.NewError("Table belongs to another user", codePermissionDenied)
		}
		logger.Error("RpcOpenTable [User:%s]: Failed to claim table %s: %v", userID, req.TableID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}

	query := fmt.Sprintf("+label.game:%s +label.table_id:%s", MatchLabelGame, req.TableID)
	matches, err := nk.MatchList(ctx, 1, true, "", nil, nil, query)
	if err != nil {
		logger.Error("RpcOpenTable [User:%s]: Failed to list matches: %v", userID, err)
		return "", err
	}
	resp := OpenTableResponse{TableID: req.TableID}
	if len(matches) > 0 {
		resp.MatchID = matches[0].MatchId
		logger.Info("RpcOpenTable [User:%s]: Found existing match %s", userID, resp.MatchID)
	} else {
		resp.MatchID, err = nk.MatchCreate(ctx, MatchNameScoreTable, map[string]interface{}{
			MatchParamTableID: req.TableID,
			MatchParamOwnerID: userID,
		})
		if err != nil {
			logger.Error("RpcOpenTable [User:%s]: Failed to create match: %v", userID, err)
			return "", err
		}
		resp.IsNew = true
		logger.Info("RpcOpenTable [User:%s]: Created new match %s", userID, resp.MatchID)
	}

	b, _ := json.Marshal(resp)
	return string(b), nil
}

// RpcShareTokenHandler issues a read-only token for a table the caller owns.
//
// Payload: {"table_id": "..."}
func RpcShareTokenHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("Authentication required", codeUnauthenticated)
	}
	var req struct {
		TableID string `json:"table_id"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil || !tableIDPattern.MatchString(req.TableID) {
		return "", runtime.NewError("Invalid payload", codeInvalidArgument)
	}

	owner, err := NewNakamaBlobStore(nk, envValue(ctx, EnvStorageCollection), req.TableID).Owner(ctx)
	if err != nil {
		logger.Error("RpcShareToken [User:%s]: Failed to read owner of %s: %v", userID, req.TableID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	if owner == "" {
		return "", runtime.NewError("Table not found", codeNotFound)
	}
	if err := app.Authorize(owner, userID); err != nil {
		return "", runtime.NewError("Only the table owner can share it", codePermissionDenied)
	}

	svc, err := shareServiceFor(ctx)
	if err != nil {
		logger.Error("RpcShareToken: %v", err)
		return "", runtime.NewError("Sharing is not configured", codeInternal)
	}
	token, err := svc.GenerateToken(req.TableID, owner)
	if err != nil {
		logger.Error("RpcShareToken [User:%s]: Failed to sign token: %v", userID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	grant, err := svc.VerifyToken(token)
	if err != nil {
		logger.Error("RpcShareToken [User:%s]: Issued token does not verify: %v", userID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}

	b, _ := json.Marshal(shareTokenResponse{Token: token, ExpiresAt: grant.ExpiresAt.Unix()})
	return string(b), nil
}

// RpcExportHistoryHandler renders a shared table's history as CSV, newest entry first.
//
// Payload: {"token": "..."}
func RpcExportHistoryHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.Token == "" {
		return "", runtime.NewError("Invalid payload", codeInvalidArgument)
	}

	svc, err := shareServiceFor(ctx)
	if err != nil {
		logger.Error("RpcExportHistory: %v", err)
		return "", runtime.NewError("Sharing is not configured", codeInternal)
	}
	grant, err := svc.VerifyToken(req.Token)
	if err != nil {
		logger.Warn("RpcExportHistory: Rejected token: %v", err)
		return "", runtime.NewError("Invalid share token", codePermissionDenied)
	}

	store := NewNakamaBlobStore(nk, envValue(ctx, EnvStorageCollection), grant.TableID)
	sess, found, err := app.LoadSession(ctx, store, config.GetTableConfig().Rules())
	if err != nil {
		logger.Error("RpcExportHistory: Failed to load table %s: %v", grant.TableID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	if !found {
		return "", runtime.NewError("Table not found", codeNotFound)
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, sess.State, sess.History.Entries(), app.MaxHistoryExport); err != nil {
		logger.Error("RpcExportHistory: Failed to render table %s: %v", grant.TableID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}

	b, _ := json.Marshal(exportResponse{
		TableID:  grant.TableID,
		FileName: exportFileName(grant.TableID, time.Now()),
		CSV:      buf.String(),
	})
	return string(b), nil
}

func shareServiceFor(ctx context.Context) (*app.ShareService, error) {
	if shareService != nil {
		return shareService, nil
	}
	secret := envValue(ctx, EnvShareSecret)
	if secret == "" {
		return nil, fmt.Errorf("runtime env %s is not set", EnvShareSecret)
	}
	issuer := envValue(ctx, EnvShareIssuer)
	if issuer == "" {
		issuer = defaultShareIssuer
	}
	return app.NewShareService(secret, issuer), nil
}
