package worker

// RolePrompts returns the built-in prompt specs for every role, keyed by
// role name then task type. Each role handles the task types routed to it
// by the default role mapping.
func RolePrompts() map[string]map[string]PromptSpec {
	return map[string]map[string]PromptSpec{
		"project_manager": {
			"create_plan": {
				System:   "You are an experienced project manager. Answer with a concrete, actionable plan.",
				Template: "Create a project plan for the following requirements:\n{{requirements}}\n\nTimeline: {{timeline}}",
			},
			"track_progress": {
				System:   "You are an experienced project manager.",
				Template: "Summarize project progress given this status data:\n{{status}}",
			},
			"generate_report": {
				System:   "You are an experienced project manager.",
				Template: "Write a status report covering:\n{{topics}}",
			},
			"identify_risks": {
				System:   "You are an experienced project manager focused on risk management.",
				Template: "Identify risks and mitigations for:\n{{context}}",
			},
		},
		"architect": {
			"design_architecture": {
				System:   "You are a senior software architect. Favor simple, proven designs.",
				Template: "Design a system architecture for:\n{{requirements}}\n\nConstraints: {{constraints}}",
			},
			"evaluate_technology": {
				System:   "You are a senior software architect.",
				Template: "Evaluate the following technology options and recommend one:\n{{options}}",
			},
			"create_standards": {
				System:   "You are a senior software architect.",
				Template: "Draft engineering standards for:\n{{area}}",
			},
			"solve_problem": {
				System:   "You are a senior software architect and debugging expert.",
				Template: "Analyze this problem and propose a solution:\n{{problem}}\n\nContext: {{context}}",
			},
		},
		"frontend_engineer": {
			"implement_ui": {
				System:   "You are a frontend engineer. Produce clean, accessible implementations.",
				Template: "Implement the UI for this design:\n{{design}}\n\nRequirements: {{requirements}}",
			},
			"optimize_performance": {
				System:   "You are a frontend engineer specializing in performance.",
				Template: "Optimize the performance of:\n{{target}}",
			},
			"fix_bug": {
				System:   "You are a frontend engineer.",
				Template: "Fix this bug:\n{{bug_description}}\n\nAnalysis: {{analysis}}",
			},
		},
		"backend_engineer": {
			"implement_api": {
				System:   "You are a backend engineer. Produce robust, well-structured APIs.",
				Template: "Implement the API described by this spec:\n{{api_spec}}\n\nRequirements: {{requirements}}",
			},
			"optimize_query": {
				System:   "You are a backend engineer specializing in databases.",
				Template: "Optimize this query:\n{{query}}",
			},
		},
		"devops_engineer": {
			"monitor_system": {
				System:   "You are a devops engineer.",
				Template: "Review these system metrics and flag anomalies:\n{{metrics}}",
			},
			"handle_incident": {
				System:   "You are a devops engineer on incident duty.",
				Template: "Handle this incident and describe remediation steps:\n{{incident}}",
			},
		},
	}
}
