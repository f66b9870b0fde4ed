// Package models holds the wire-level shapes shared between the GitHub
// client, the engine, and the API layer.
package models

import "time"

// User is the authenticated GitHub user summary returned after login.
type User struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// Repo is a repository listing entry.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    string `json:"owner"`
	Private  bool   `json:"private"`
}

// Branch is a branch listing entry.
type Branch struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// Commit is the subject line and sha of one commit, plus the files it
// touched when fetched with details.
type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"name"` // "name" on the wire for the frontend
	Author  string    `json:"author,omitempty"`
	Date    time.Time `json:"date,omitzero"`
	Files   []string  `json:"files,omitempty"`
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// PullRequest is PR metadata as consumed by the engine.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
	HeadSHA string `json:"sha"`
	State   string `json:"state,omitempty"`
}

// TreeEntry is one blob in a repository file tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// AnalysisResult is a cached provider answer together with the metadata
// the frontend renders alongside it. Markdown fields are opaque here.
type AnalysisResult struct {
	SHA                  string `json:"sha,omitempty"`
	Analysis             string `json:"analysis"`
	Diff                 string `json:"diff,omitempty"`
	PreviousDiff         string `json:"previous_diff,omitempty"`
	CommitNumber         int    `json:"commit_number,omitempty"`
	PreviousCommitNumber int    `json:"previous_commit_number,omitempty"`
}

// Turn is one conversational exchange in a chat scope.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// WhatIfSHA carries the hypothetical target for what-if turns. It
	// never replaces the scope's persisted target.
	WhatIfSHA string `json:"what_if_sha,omitempty"`
}
