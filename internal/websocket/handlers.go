package websocket

import (
	"context"
	"errors"
	"time"

	apierrors "codeberg.org/pairview/server/internal/errors"
	"codeberg.org/pairview/server/internal/logger"
	"codeberg.org/pairview/server/internal/registry"
	"codeberg.org/pairview/server/pairview/sessions"
)

// receives accepted snapshots for debounced persistence
type SnapshotBuffer interface {
	MarkDirty(ctx context.Context, sessionID string, version int64, content string) error
}

// persists config changes
type ConfigStore interface {
	UpdateConfig(ctx context.Context, sessionID, language string, cfg sessions.EditorConfig) error
}

// handles edit messages: optimistic concurrency against the registry's
// live version. The registry is the single serializer per session, so a
// conflict means the sender must rebase on the returned state and resubmit;
// the server never merges.
func EditHandler(reg *registry.Registry, buf SnapshotBuffer) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.editLimiter.Allow() {
			client.SendError(apierrors.CodeTooManyRequests, "too many edits, slow down", "")
			return ErrRateLimitExceeded
		}

		if !client.CanWrite() {
			client.SendError(apierrors.CodeForbidden, "observers cannot edit", "")
			return ErrReadOnly
		}

		var payload EditPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError(apierrors.CodeValidationError, "failed to parse edit", err.Error())
			return err
		}

		if len(payload.Patch) > maxContentSize {
			client.SendError(apierrors.CodeBadRequest, "content exceeds maximum size", "")
			return ErrContentTooLarge
		}

		// ack and relay inside the commit hook: the registry holds the
		// session's edit serialization through publish, so relayed versions
		// leave in order even with handlers running concurrently
		version, err := reg.ApplyPublish(client.SessionID, payload.BaseVersion, payload.Patch, func(version int64) {
			ackMsg, msgErr := NewMessage(TypeEditAck, client.SessionID, client.UserID, EditAckPayload{
				Version: version,
			})
			if msgErr == nil {
				client.Send(ackMsg) //nolint:errcheck,gosec // best-effort ack
			}

			broadcastMsg, msgErr := NewMessage(TypeEditBroadcast, client.SessionID, client.UserID, EditBroadcastPayload{
				Version:      version,
				Patch:        payload.Patch,
				AuthorUserID: client.UserID,
			})
			if msgErr != nil {
				logger.ErrorErr(msgErr, "failed to create edit broadcast message",
					"client_id", client.ID,
					"session_id", client.SessionID,
				)
				return
			}

			hub.BroadcastToSession(client.SessionID, broadcastMsg, client.ID)
		})
		if err != nil {
			var conflict *registry.ConflictError
			if errors.As(err, &conflict) {
				// stale base: hand the sender the authoritative state
				// to rebase on; this is a signal, not a failure
				rejectMsg, msgErr := NewMessage(TypeEditRejected, client.SessionID, client.UserID, EditRejectedPayload{
					Version: conflict.Version,
					Content: conflict.Content,
				})
				if msgErr == nil {
					client.Send(rejectMsg) //nolint:errcheck,gosec // best-effort rebase signal
				}

				return nil
			}

			client.SendError(apierrors.CodeServerError, "failed to apply edit", err.Error())
			return err
		}

		// queue the snapshot for debounced persistence; a buffer failure
		// is transient and never blocks the broadcast above
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := buf.MarkDirty(ctx, client.SessionID, version, payload.Patch); err != nil {
			logger.ErrorErr(err, "failed to buffer snapshot",
				"client_id", client.ID,
				"session_id", client.SessionID,
				"version", version,
			)
		}

		return nil
	}
}

// handles cursor messages: ephemeral, never versioned, never persisted
func CursorHandler() MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.cursorLimiter.Allow() {
			// silently drop: cursor spam is not worth an error round-trip
			return ErrRateLimitExceeded
		}

		var payload CursorPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError(apierrors.CodeValidationError, "failed to parse cursor event", err.Error())
			return err
		}

		broadcastMsg, err := NewMessage(TypeCursorBroadcast, client.SessionID, client.UserID, CursorBroadcastPayload{
			UserID:      client.UserID,
			DisplayName: client.DisplayName,
			Line:        payload.Line,
			Col:         payload.Col,
		})
		if err != nil {
			return err
		}

		hub.BroadcastToSession(client.SessionID, broadcastMsg, client.ID)

		return nil
	}
}

// handles config messages from owner/participant; observers are rejected
func ConfigHandler(reg *registry.Registry, store ConfigStore) MessageHandler {
	return func(hub *Hub, client *Client, msg *Message) error {
		if !client.CanWrite() {
			client.SendError(apierrors.CodeForbidden, "observers cannot change session config", "")
			return ErrReadOnly
		}

		var payload ConfigPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError(apierrors.CodeValidationError, "failed to parse config event", err.Error())
			return err
		}

		reg.SetConfig(client.SessionID, payload.Language, payload.EditorConfig)

		// an omitted language means "unchanged": persist and broadcast the
		// effective language the registry settled on, not the raw payload
		language := payload.Language
		if snap, ok := reg.Snapshot(client.SessionID); ok {
			language = snap.Language
		}

		// persist directly; config changes are rare enough to skip the buffer
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.UpdateConfig(ctx, client.SessionID, language, payload.EditorConfig); err != nil {
			logger.ErrorErr(err, "failed to persist config change",
				"client_id", client.ID,
				"session_id", client.SessionID,
			)
			// broadcast still happens; in-memory state is authoritative
		}

		broadcastMsg, err := NewMessage(TypeConfigBroadcast, client.SessionID, client.UserID, ConfigBroadcastPayload{
			Language:     language,
			EditorConfig: payload.EditorConfig,
			AuthorUserID: client.UserID,
		})
		if err != nil {
			logger.ErrorErr(err, "failed to create config broadcast message",
				"client_id", client.ID,
				"session_id", client.SessionID,
			)
			return err
		}

		// all participants, sender included: the ack is the broadcast
		hub.BroadcastToSession(client.SessionID, broadcastMsg, "")

		return nil
	}
}

// handles ping messages from clients (keep-alive)
func PingHandler() MessageHandler {
	return func(_ *Hub, client *Client, _ *Message) error {
		pongMsg, err := NewMessage(TypePong, client.SessionID, client.UserID, nil)
		if err != nil {
			return err
		}
		client.Send(pongMsg) //nolint:errcheck,gosec // best-effort pong
		return nil
	}
}
