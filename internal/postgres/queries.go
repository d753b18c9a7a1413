package postgres

// sender_id/receiver_id выводятся из пары и sender_role.
const messageColumns = `
	id,
	contract_id,
	CASE WHEN sender_role = 'client' THEN client_id ELSE freelancer_id END AS sender_id,
	CASE WHEN sender_role = 'client' THEN freelancer_id ELSE client_id END AS receiver_id,
	sender_role,
	content,
	is_read,
	created_at`

const (
	qMessageInsert = `
		INSERT INTO messages (contract_id, client_id, freelancer_id, sender_role, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + messageColumns

	qMessageGet = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	qMessageListBetween = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE client_id = $1 AND freelancer_id = $2
		  AND (
		    $3::timestamptz IS NULL
		    OR created_at > $3
		    OR (created_at = $3 AND id > $4)
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT NULLIF($5::int, 0)`

	// читатель отмечает только входящие: отправитель — другая роль
	qMessageMarkRead = `
		UPDATE messages SET is_read = TRUE
		WHERE client_id = $1 AND freelancer_id = $2
		  AND sender_role <> $3
		  AND NOT is_read`

	qMessageUnreadByClient = `
		SELECT freelancer_id, COUNT(*)
		FROM messages
		WHERE client_id = $1 AND sender_role = 'freelancer' AND NOT is_read
		GROUP BY freelancer_id
		ORDER BY freelancer_id`

	qMessageUnreadByFreelancer = `
		SELECT client_id, COUNT(*)
		FROM messages
		WHERE freelancer_id = $1 AND sender_role = 'client' AND NOT is_read
		GROUP BY client_id
		ORDER BY client_id`
)

const contractColumns = `
	c.id,
	c.contract_code,
	COALESCE(c.task_id, 0),
	c.client_id,
	c.freelancer_id,
	COALESCE(c.agreed_amount::text, ''),
	c.status,
	c.started_at,
	cl.name,
	cl.image,
	fr.name,
	fr.image`

const (
	qContractsByClient = `
		SELECT ` + contractColumns + `
		FROM contracts c
		JOIN clients cl ON cl.id = c.client_id
		JOIN freelancers fr ON fr.id = c.freelancer_id
		WHERE c.client_id = $1
		ORDER BY c.id ASC`

	qContractsByFreelancer = `
		SELECT ` + contractColumns + `
		FROM contracts c
		JOIN clients cl ON cl.id = c.client_id
		JOIN freelancers fr ON fr.id = c.freelancer_id
		WHERE c.freelancer_id = $1
		ORDER BY c.id ASC`

	// последний контракт пары; к нему привязываются новые сообщения
	qContractLatestBetween = `
		SELECT ` + contractColumns + `
		FROM contracts c
		JOIN clients cl ON cl.id = c.client_id
		JOIN freelancers fr ON fr.id = c.freelancer_id
		WHERE c.client_id = $1 AND c.freelancer_id = $2
		ORDER BY c.id DESC
		LIMIT 1`
)

const (
	qClientByEmail     = `SELECT id, name, email, image, password_hash FROM clients WHERE lower(email) = lower($1)`
	qFreelancerByEmail = `SELECT id, name, email, image, password_hash FROM freelancers WHERE lower(email) = lower($1)`
	qClientByID        = `SELECT id, name, email, image, password_hash FROM clients WHERE id = $1`
	qFreelancerByID    = `SELECT id, name, email, image, password_hash FROM freelancers WHERE id = $1`
)

const (
	qSessionInsert = `
		INSERT INTO sessions (id, role, party_id, created_at, expires_at, last_seen_at, user_agent, ip)
		VALUES ($1::uuid, $2, $3, $4, $5, $4, $6, $7)`

	qSessionGet = `
		SELECT id::text, role, party_id, created_at, expires_at, last_seen_at, revoked_at, user_agent, ip
		FROM sessions WHERE id = $1::uuid`

	qSessionTouch = `UPDATE sessions SET last_seen_at = $2 WHERE id = $1::uuid AND revoked_at IS NULL`

	qSessionRevoke = `UPDATE sessions SET revoked_at = $2 WHERE id = $1::uuid AND revoked_at IS NULL`

	qSessionDeleteExpired = `DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1 - INTERVAL '1 day'`
)
