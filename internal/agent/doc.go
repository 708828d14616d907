// Package agent implements the review agents.
//
// There is one [Agent] type. What makes a logic reviewer different from a
// security reviewer is its [Role]: a category and an instruction, both plain
// data. [DefaultRoles] returns the four built-in roles.
//
// For each hunk of a file an agent renders a numbered snippet, asks the model
// for findings as JSON, interprets the reply with [Parse], and maps each
// finding's snippet-relative line back to a real file line. Replies that are
// not clean JSON are salvaged heuristically at reduced confidence; replies
// that cannot be salvaged yield no comments.
package agent
