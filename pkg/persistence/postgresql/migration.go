package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255),
				tenant_id VARCHAR(255),
				current_step VARCHAR(255),
				status VARCHAR(32) NOT NULL CHECK (status IN ('Pending', 'Running', 'Succeeded', 'Failed')),
				context JSONB NOT NULL DEFAULT '{}',
				iterations INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				failure_reason VARCHAR(64),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id);
			CREATE INDEX idx_workflow_runs_status ON workflow_runs(status);
			CREATE INDEX idx_workflow_runs_started_at ON workflow_runs(started_at);
		`,
	}
}
