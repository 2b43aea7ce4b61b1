package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Template versions are immutable: every edit inserts the next
			-- (id, version) row and older rows are kept for in-flight instances.
			CREATE TABLE workflow_templates (
				id UUID NOT NULL,
				version INT NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				department_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL CHECK (trigger_type IN ('MANUAL', 'AUTOMATIC')),
				active BOOLEAN NOT NULL DEFAULT true,
				initial_step VARCHAR(255) NOT NULL,
				attribute_schema JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (id, version)
			);

			CREATE INDEX idx_workflow_templates_org ON workflow_templates(organization_id);
			CREATE INDEX idx_workflow_templates_department ON workflow_templates(department_id);

			CREATE TABLE template_steps (
				template_id UUID NOT NULL,
				template_version INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				display_order INT NOT NULL DEFAULT 0,
				description TEXT NOT NULL DEFAULT '',
				all_conditions_must_match BOOLEAN NOT NULL DEFAULT false,
				PRIMARY KEY (template_id, template_version, name),
				FOREIGN KEY (template_id, template_version)
					REFERENCES workflow_templates(id, version) ON DELETE CASCADE
			);

			CREATE TABLE step_conditions (
				template_id UUID NOT NULL,
				template_version INT NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				kind VARCHAR(50) NOT NULL,
				payload JSONB NOT NULL,
				PRIMARY KEY (template_id, template_version, step_name, position),
				FOREIGN KEY (template_id, template_version, step_name)
					REFERENCES template_steps(template_id, template_version, name) ON DELETE CASCADE
			);

			CREATE TABLE step_actions (
				template_id UUID NOT NULL,
				template_version INT NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				kind VARCHAR(50) NOT NULL,
				mode VARCHAR(10) NOT NULL CHECK (mode IN ('ALL', 'ANY')),
				approver_role VARCHAR(255),
				member_id VARCHAR(255),
				PRIMARY KEY (template_id, template_version, step_name, position),
				FOREIGN KEY (template_id, template_version, step_name)
					REFERENCES template_steps(template_id, template_version, name) ON DELETE CASCADE
			);

			CREATE TABLE step_transitions (
				template_id UUID NOT NULL,
				template_version INT NOT NULL,
				step_name VARCHAR(255) NOT NULL,
				on_outcome VARCHAR(20) NOT NULL CHECK (on_outcome IN ('APPROVED', 'REJECTED', 'SKIPPED')),
				to_step VARCHAR(255),
				terminal_status VARCHAR(20) CHECK (terminal_status IN ('APPROVED', 'REJECTED')),
				PRIMARY KEY (template_id, template_version, step_name, on_outcome),
				FOREIGN KEY (template_id, template_version, step_name)
					REFERENCES template_steps(template_id, template_version, name) ON DELETE CASCADE
			);

			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				department_id VARCHAR(255),
				template_id UUID NOT NULL,
				template_version INT NOT NULL,
				entity_type VARCHAR(255) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				current_step VARCHAR(255),
				status VARCHAR(20) NOT NULL CHECK (status IN ('IN_PROGRESS', 'APPROVED', 'REJECTED', 'CANCELLED')),
				blocked_reason TEXT NOT NULL DEFAULT '',
				attributes JSONB,
				row_version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				FOREIGN KEY (template_id, template_version)
					REFERENCES workflow_templates(id, version)
			);

			CREATE INDEX idx_workflow_instances_org ON workflow_instances(organization_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_entity ON workflow_instances(entity_type, entity_id);
			CREATE INDEX idx_workflow_instances_blocked ON workflow_instances(status, blocked_reason)
				WHERE blocked_reason <> '';

			CREATE TABLE step_executions (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_name VARCHAR(255) NOT NULL,
				required_actors JSONB NOT NULL,
				mode VARCHAR(10) NOT NULL CHECK (mode IN ('ALL', 'ANY')),
				outcome VARCHAR(20) CHECK (outcome IN ('APPROVED', 'REJECTED', 'SKIPPED')),
				entered_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resolved_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_step_executions_instance ON step_executions(instance_id, entered_at);

			CREATE TABLE step_decisions (
				execution_id UUID NOT NULL REFERENCES step_executions(id) ON DELETE CASCADE,
				actor_id VARCHAR(255) NOT NULL,
				decision VARCHAR(10) NOT NULL CHECK (decision IN ('APPROVE', 'REJECT')),
				note TEXT NOT NULL DEFAULT '',
				decided_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, actor_id)
			);
		`,
	}
}
