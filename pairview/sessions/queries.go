package sessions

const (
	queryCreateSession = `
		INSERT INTO sessions (id, owner_id, language, editor_config, observable)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, participant_ids, content, version, language, editor_config, observable, is_active, created_at, updated_at, ended_at
	`

	queryGetSession = `
		SELECT id, owner_id, participant_ids, content, version, language, editor_config, observable, is_active, created_at, updated_at, ended_at
		FROM sessions
		WHERE id = $1
	`

	queryGetUserSessions = `
		SELECT id, owner_id, participant_ids, content, version, language, editor_config, observable, is_active, created_at, updated_at, ended_at
		FROM sessions
		WHERE owner_id = $1 OR $1 = ANY(participant_ids)
		ORDER BY updated_at DESC
	`

	queryGetUserSessionsActiveOnly = `
		SELECT id, owner_id, participant_ids, content, version, language, editor_config, observable, is_active, created_at, updated_at, ended_at
		FROM sessions
		WHERE (owner_id = $1 OR $1 = ANY(participant_ids)) AND is_active = true
		ORDER BY updated_at DESC
	`

	queryAddParticipant = `
		UPDATE sessions
		SET participant_ids = array_append(participant_ids, $2), updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(participant_ids))
	`

	// version guard keeps persisted content monotonic: an older or replayed
	// snapshot never overwrites a newer one
	querySaveSnapshot = `
		UPDATE sessions
		SET content = $2, version = $3, updated_at = NOW()
		WHERE id = $1 AND version <= $3
	`

	// an empty language leaves the stored language untouched
	queryUpdateConfig = `
		UPDATE sessions
		SET language = COALESCE(NULLIF($2, ''), language), editor_config = $3, updated_at = NOW()
		WHERE id = $1
	`

	queryEndSession = `
		UPDATE sessions
		SET is_active = false, ended_at = NOW()
		WHERE id = $1
	`

	queryListStaleSessions = `
		SELECT id, owner_id, participant_ids, content, version, language, editor_config, observable, is_active, created_at, updated_at, ended_at
		FROM sessions
		WHERE is_active = true AND updated_at < $1
	`
)
