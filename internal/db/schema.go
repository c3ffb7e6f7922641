package db

// The two schemas are column-for-column identical so that every query in this
// package runs unchanged on both backends.

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL UNIQUE,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	avatar_url TEXT NOT NULL,
	access_token TEXT NOT NULL,
	plan TEXT NOT NULL,
	settings TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL UNIQUE,
	name TEXT NOT NULL,
	full_name TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users(id),
	private BOOLEAN NOT NULL,
	description TEXT NOT NULL,
	language TEXT NOT NULL,
	stars INTEGER NOT NULL,
	watchers INTEGER NOT NULL,
	forks INTEGER NOT NULL,
	ai_enabled BOOLEAN NOT NULL,
	settings TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repositories_owner ON repositories(owner_id);

CREATE TABLE IF NOT EXISTS repository_collaborators (
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	PRIMARY KEY (repository_id, user_id)
);

CREATE TABLE IF NOT EXISTS pull_requests (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL UNIQUE,
	number INTEGER NOT NULL,
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	state TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	author_avatar TEXT NOT NULL,
	assignees TEXT NOT NULL,
	reviewers TEXT NOT NULL,
	labels TEXT NOT NULL,
	head_ref TEXT NOT NULL,
	base_ref TEXT NOT NULL,
	additions INTEGER NOT NULL,
	deletions INTEGER NOT NULL,
	changed_files INTEGER NOT NULL,
	html_url TEXT NOT NULL,
	ai_analysis TEXT,
	ai_last_analyzed TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pull_requests_repo_number ON pull_requests(repository_id, number);

CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL UNIQUE,
	number INTEGER NOT NULL,
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	state TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	author_avatar TEXT NOT NULL,
	assignees TEXT NOT NULL,
	labels TEXT NOT NULL,
	priority TEXT NOT NULL,
	html_url TEXT NOT NULL,
	ai_analysis TEXT,
	ai_last_analyzed TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_repo_number ON issues(repository_id, number);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	parent_type TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	body TEXT NOT NULL,
	html_url TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (kind, github_id)
);

CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_type, parent_id);

CREATE TABLE IF NOT EXISTS reviews (
	id TEXT PRIMARY KEY,
	github_id INTEGER NOT NULL UNIQUE,
	pull_request_id TEXT NOT NULL REFERENCES pull_requests(id),
	reviewer_login TEXT NOT NULL,
	state TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	avatar_url TEXT NOT NULL,
	access_token TEXT NOT NULL,
	plan TEXT NOT NULL,
	settings TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	full_name TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users(id),
	private BOOLEAN NOT NULL,
	description TEXT NOT NULL,
	language TEXT NOT NULL,
	stars INTEGER NOT NULL,
	watchers INTEGER NOT NULL,
	forks INTEGER NOT NULL,
	ai_enabled BOOLEAN NOT NULL,
	settings TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repositories_owner ON repositories(owner_id);

CREATE TABLE IF NOT EXISTS repository_collaborators (
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	PRIMARY KEY (repository_id, user_id)
);

CREATE TABLE IF NOT EXISTS pull_requests (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL UNIQUE,
	number INTEGER NOT NULL,
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	state TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	author_avatar TEXT NOT NULL,
	assignees TEXT NOT NULL,
	reviewers TEXT NOT NULL,
	labels TEXT NOT NULL,
	head_ref TEXT NOT NULL,
	base_ref TEXT NOT NULL,
	additions INTEGER NOT NULL,
	deletions INTEGER NOT NULL,
	changed_files INTEGER NOT NULL,
	html_url TEXT NOT NULL,
	ai_analysis TEXT,
	ai_last_analyzed TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pull_requests_repo_number ON pull_requests(repository_id, number);

CREATE TABLE IF NOT EXISTS issues (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL UNIQUE,
	number INTEGER NOT NULL,
	repository_id TEXT NOT NULL REFERENCES repositories(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	state TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	author_avatar TEXT NOT NULL,
	assignees TEXT NOT NULL,
	labels TEXT NOT NULL,
	priority TEXT NOT NULL,
	html_url TEXT NOT NULL,
	ai_analysis TEXT,
	ai_last_analyzed TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_repo_number ON issues(repository_id, number);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	parent_type TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	author_login TEXT NOT NULL,
	body TEXT NOT NULL,
	html_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (kind, github_id)
);

CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_type, parent_id);

CREATE TABLE IF NOT EXISTS reviews (
	id TEXT PRIMARY KEY,
	github_id BIGINT NOT NULL UNIQUE,
	pull_request_id TEXT NOT NULL REFERENCES pull_requests(id),
	reviewer_login TEXT NOT NULL,
	state TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`
