package postgresql

// migrations returns the database migrations indexed by schema version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				context JSONB,
				error_message TEXT,
				triggered_by VARCHAR(255),
				correlation_id VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_name ON executions(workflow_name);
			CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
			CREATE INDEX IF NOT EXISTS idx_executions_correlation_id ON executions(correlation_id);

			CREATE TABLE IF NOT EXISTS execution_steps (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				step_index INTEGER NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error_message TEXT,
				attempts INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				UNIQUE (execution_id, step_index)
			);

			CREATE INDEX IF NOT EXISTS idx_execution_steps_execution_id ON execution_steps(execution_id);
		`,
	}
}
