package ledger

const (
	queryInsertOperation = `
		INSERT INTO operations (
			id, code, account_type, kind, currency_id, member_id,
			reference_type, reference_id, debit, credit, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryOperationsByAccount = `
		SELECT debit, credit
		FROM operations
		WHERE code = ? AND currency_id = ? AND (? = '' OR member_id = ?)`

	queryOperationsByReference = `
		SELECT id, code, account_type, kind, currency_id, member_id,
		       reference_type, reference_id, debit, credit, created_at
		FROM operations
		WHERE reference_type = ? AND reference_id = ?
		ORDER BY created_at, id`

	queryOperationsByMemberAccount = `
		SELECT debit, credit
		FROM operations
		WHERE code = ? AND currency_id = ? AND member_id = ?`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE member_id = ? AND currency_id = ? AND kind = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, member_id, currency_id, kind, balance, version)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_operation_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE member_id = ? AND currency_id = ? AND kind = ? AND version = ?`
)
