// Package prompts holds the domain knowledge and prompt builders for
// the planner, validator, referencing, and utility agents.
package prompts

import (
	"fmt"
	"strings"
)

// Pillars in the order they appear in prompts.
var Pillars = []string{"HCM", "Financials", "SCM"}

// PillarModuleMap maps ERP pillars to their modules.
var PillarModuleMap = map[string][]string{
	"HCM": {
		"Core HR",
		"Benefits",
		"Absence Management",
		"Compensation",
		"Payroll",
		"Talent Management",
		"Learning",
		"ORC",
		"Time and Labour",
	},
	"Financials": {
		"General Ledger",
		"Account Payables",
		"Account Receivables",
		"Cash Management",
		"Fixed Assets",
		"Expenses",
	},
	"SCM": {
		"Procurement",
		"Inventory Management",
		"Order Management",
		"Manufacturing",
		"Costing",
	},
}

// ERPConfigSequences describes the order in which modules must be
// configured within each pillar.
var ERPConfigSequences = map[string]string{
	"HCM": "Core HR -> Benefits -> Time & Labour -> Absence -> Payroll -> Learning -> " +
		"Talent Management (Profile -> Goal Management -> Performance Management -> " +
		"Career Development) -> Compensation -> Recruiting (ORC & Onboarding)",
	"Financials": "General Ledger -> Payables & Expense -> Cash Management -> Receivables -> " +
		"Fixed Assets -> Project Financials -> Integration & Reporting",
	"SCM": "Inventory Management -> Costing -> Procurement -> Order Management -> Manufacturing",
}

// BusinessProcessMap maps modules to the business processes they cover.
var BusinessProcessMap = map[string][]string{
	"Account Payables":      {"Payables"},
	"General Ledger":        {"Record to Report"},
	"Cash Management":       {"Cash Management"},
	"Fixed Assets":          {"Asset to Retire"},
	"Account Receivables":   {"Receivables"},
	"Expenses":              {"Expenses"},
	"Procurement":           {"Procure to Pay", "Sourcing", "Supplier Management"},
	"Inventory Management":  {"Inventory Management"},
	"Order Management":      {"Order to Cash", "Drop-Shipment Process", "Back to Back Process"},
	"Manufacturing":         {"Manufacturing"},
	"Global HR":             {"Hire to Retire"},
	"ORC":                   {"Recruiting"},
	"Benefits":              {"Benefits"},
	"Absence Management":    {"Absence Management"},
	"Talent Management":     {"Goal Management", "Performance Management"},
	"Oracle Learning Cloud": {"Learning"},
	"Payroll":               {"Payroll"},
	"Compensation":          {"Compensation"},
}

// blockTypeOrder keeps block type descriptions in a stable prompt order.
var blockTypeOrder = []string{"task_block", "ai_block", "manual_block", "conditional_block"}

// BlockTypeDescriptions explains each block category to the planner.
var BlockTypeDescriptions = map[string]string{
	"task_block": "Pre-built automation block from the task block library. " +
		"Has a specific ActionCode, predefined inputs/outputs with exact field names. " +
		"Always use task_block_search to get complete block details before using. " +
		"Copy ActionCode, input Names, and output Names exactly as returned.",
	"ai_block": "AskWilfred block — delegates tasks to Wilfred AI during workflow execution. " +
		"Capabilities: research & synthesis, document retrieval, real-time information, " +
		"format conversion, and Opkey systems knowledge. " +
		"ActionCode is always 'AskWilfred'. Has three inputs: Prompt, Attachment, Output Format. " +
		"Use only when no suitable Opkey task block exists — AI blocks are expensive.",
	"manual_block": "HumanDependent block — pauses workflow execution for manual human action. " +
		"ActionCode is always 'HumanDependent'. Has three inputs: Task Recipients, Task, Attachment. " +
		"Use when a step requires human intervention (approvals, manual data entry, reviews).",
	"conditional_block": "Conditional If block — enables branching based on logical expressions. " +
		"Evaluates up to two conditions with AND/OR operators. Returns Boolean output. " +
		"Outgoing edges must have EdgeCondition set to 'true' or 'false'.",
}

// FormatPillarModules renders the pillar/module map for prompt injection.
func FormatPillarModules() string {
	lines := make([]string, 0, len(Pillars))
	for _, pillar := range Pillars {
		lines = append(lines, fmt.Sprintf("**%s**: %s", pillar, strings.Join(PillarModuleMap[pillar], ", ")))
	}
	return strings.Join(lines, "\n")
}

// FormatConfigSequences renders the ERP configuration sequences.
func FormatConfigSequences() string {
	lines := make([]string, 0, len(Pillars))
	for _, pillar := range Pillars {
		lines = append(lines, fmt.Sprintf("**%s**: %s", pillar, ERPConfigSequences[pillar]))
	}
	return strings.Join(lines, "\n")
}

// FormatBlockTypeDescriptions renders the block type catalog.
func FormatBlockTypeDescriptions() string {
	sections := make([]string, 0, len(blockTypeOrder))
	for _, blockType := range blockTypeOrder {
		label := titleCase(strings.ReplaceAll(blockType, "_", " "))
		sections = append(sections, fmt.Sprintf("### %s\n%s", label, BlockTypeDescriptions[blockType]))
	}
	return strings.Join(sections, "\n\n")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
