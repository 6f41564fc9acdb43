package queries

const (
	Authority = `
		SELECT governance, pending_governance
			FROM router.governance
			WHERE id`

	UpsertAuthority = `
		INSERT INTO router.governance (id, governance, pending_governance)
			VALUES (TRUE, $1, $2)
		ON CONFLICT (id) DO UPDATE
			SET governance = excluded.governance,
				pending_governance = excluded.pending_governance`

	Stack = `
		SELECT strategy
			FROM router.withdrawal_stacks
			WHERE vault = $1
		ORDER BY position`

	DeleteStack = `
		DELETE FROM router.withdrawal_stacks
			WHERE vault = $1`

	InsertStackEntry = `
		INSERT INTO router.withdrawal_stacks (vault, position, strategy)
			VALUES ($1, $2, $3)`
)
