package agent

import (
	"fmt"
	"strings"

	"github.com/dshills/quorum/internal/review"
)

// Role is the data that specialises an Agent.
type Role struct {
	Category    review.Category
	Instruction string
}

// Name is the agent name for the role, e.g. "security".
func (r Role) Name() string { return string(r.Category) }

const logicInstruction = `You are an expert code reviewer specializing in logic and correctness.

Analyze the provided code change and identify:
- Off-by-one errors
- Nil or undefined reference issues
- Missing edge case handling
- Incorrect conditional logic
- Type mismatches or unsafe conversions
- Potential infinite loops or unbounded recursion
- Logic errors in algorithms`

const styleInstruction = `You are an expert code reviewer specializing in code style and maintainability.

Analyze the provided code change and identify:
- Poor variable or function naming
- Complex or unclear code that needs refactoring
- Missing documentation where it is needed
- Inconsistent formatting or style
- Code duplication
- Overly long functions
- Poor code organization`

const securityInstruction = `You are an expert security code reviewer.

Analyze the provided code change and identify:
- SQL, command, or template injection
- Cross-site scripting
- Path traversal
- Hardcoded secrets, API keys, or passwords
- Insecure cryptographic practices
- Authentication or authorization bypass
- Unsafe deserialization
- Race conditions and TOCTOU issues
- Insufficient input validation`

const performanceInstruction = `You are an expert performance reviewer.

Analyze the provided code change and identify:
- Inefficient algorithms or data structures
- N+1 query patterns
- Unnecessary loops or redundant computation
- Memory leaks or excessive allocation
- Blocking operations on hot or concurrent paths
- Inefficient string building
- Missing caching opportunities
- Inefficient I/O or unnecessary network calls`

// responseFormat is appended to every role instruction.
const responseFormat = `
Each snippet line is shown as <n>|<tag>| <code>, where <n> is the line's position in the hunk and <tag> is "+" (added), "-" (removed) or " " (unchanged context).

Respond with ONLY a JSON object, no markdown and no commentary:
{"findings": [{"line": <n>, "side": "new", "category": "%s", "confidence": <0.0-1.0>, "body": "<brief explanation>"}]}

"line" is the <n> position from the snippet. Use "side": "old" only when the finding is about a removed line.
Only comment on the lines shown. If there are no issues, respond with {"findings": []}.`

// DefaultRoles returns the built-in roles in order: logic, style, security,
// performance.
func DefaultRoles() []Role {
	return []Role{
		{Category: review.CategoryLogic, Instruction: logicInstruction},
		{Category: review.CategoryStyle, Instruction: styleInstruction},
		{Category: review.CategorySecurity, Instruction: securityInstruction},
		{Category: review.CategoryPerformance, Instruction: performanceInstruction},
	}
}

// SelectRoles returns the default roles named in names, in default order.
// An empty list selects all of them.
func SelectRoles(names []string) ([]Role, error) {
	all := DefaultRoles()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := review.ParseCategory(n); !ok {
			return nil, fmt.Errorf("unknown agent %q (valid: logic, style, security, performance)", n)
		}
		want[n] = true
	}
	var out []Role
	for _, r := range all {
		if want[r.Name()] {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no agents selected")
	}
	return out, nil
}
