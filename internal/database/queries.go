package database

const (
	// Deposit queries
	queryInsertDeposit = `
		INSERT INTO deposits (
			id, tid, member_id, currency_id, amount, fee, address, txid, txout,
			block_number, state, spread, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDeposit = `
		SELECT id, tid, member_id, currency_id, amount, fee, address, txid, txout,
		       block_number, state, spread, created_at, updated_at, completed_at
		FROM deposits
		WHERE id = ?`

	queryGetDepositByTx = `
		SELECT id, tid, member_id, currency_id, amount, fee, address, txid, txout,
		       block_number, state, spread, created_at, updated_at, completed_at
		FROM deposits
		WHERE currency_id = ? AND txid = ? AND txout = ?`

	queryListDepositsByState = `
		SELECT id, tid, member_id, currency_id, amount, fee, address, txid, txout,
		       block_number, state, spread, created_at, updated_at, completed_at
		FROM deposits
		WHERE state = ?
		ORDER BY created_at`

	queryUpdateDepositState = `
		UPDATE deposits
		SET state = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`

	queryUpdateDepositSpread = `
		UPDATE deposits
		SET spread = ?, updated_at = ?
		WHERE id = ?`

	// Withdraw queries
	queryInsertWithdraw = `
		INSERT INTO withdraws (
			id, tid, member_id, currency_id, amount, fee, sum, rid, txid,
			block_number, state, error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWithdraw = `
		SELECT id, tid, member_id, currency_id, amount, fee, sum, rid, txid,
		       block_number, state, error, created_at, updated_at, completed_at
		FROM withdraws
		WHERE id = ?`

	queryListWithdrawsByState = `
		SELECT id, tid, member_id, currency_id, amount, fee, sum, rid, txid,
		       block_number, state, error, created_at, updated_at, completed_at
		FROM withdraws
		WHERE state = ?
		ORDER BY created_at`

	queryUpdateWithdraw = `
		UPDATE withdraws
		SET state = ?, txid = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`

	// Trailing-window rows used by the quick-withdraw audit. Only withdrawals
	// that hold or already spent funds count against the limit. Sums are
	// stored as decimal strings, so the addition happens in Go.
	querySelectWithdrawSumsSince = `
		SELECT sum
		FROM withdraws
		WHERE currency_id = ? AND member_id = ? AND id != ?
		  AND created_at >= ?
		  AND state IN ('processing', 'confirming', 'succeed')`
)
