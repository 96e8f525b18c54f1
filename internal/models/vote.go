package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidTarget = errors.New("vote target must reference exactly one of post or comment")
)

type TargetKind uint8

const (
	targetNone TargetKind = iota
	TargetPost
	TargetComment
)

func (k TargetKind) String() string {
	switch k {
	case TargetPost:
		return "post"
	case TargetComment:
		return "comment"
	}
	return "none"
}

// VoteTarget is either a post or a comment, never both. The zero value is
// invalid; build one with PostTarget or CommentTarget.
type VoteTarget struct {
	kind TargetKind
	id   string
}

func PostTarget(postID string) VoteTarget {
	return VoteTarget{kind: TargetPost, id: postID}
}

func CommentTarget(commentID string) VoteTarget {
	return VoteTarget{kind: TargetComment, id: commentID}
}

// TargetFromColumns decodes the nullable post_id/comment_id pair stored on
// a vote row.
func TargetFromColumns(postID, commentID *string) (VoteTarget, error) {
	hasPost := postID != nil && *postID != ""
	hasComment := commentID != nil && *commentID != ""
	switch {
	case hasPost && !hasComment:
		return PostTarget(*postID), nil
	case hasComment && !hasPost:
		return CommentTarget(*commentID), nil
	}
	return VoteTarget{}, ErrInvalidTarget
}

func (t VoteTarget) Kind() TargetKind { return t.kind }
func (t VoteTarget) ID() string       { return t.id }

func (t VoteTarget) IsPost() bool    { return t.kind == TargetPost }
func (t VoteTarget) IsComment() bool { return t.kind == TargetComment }

func (t VoteTarget) Validate() error {
	if (t.kind != TargetPost && t.kind != TargetComment) || t.id == "" {
		return ErrInvalidTarget
	}
	return nil
}

// Columns encodes the target as the nullable post_id/comment_id pair.
func (t VoteTarget) Columns() (postID, commentID *string) {
	id := t.id
	switch t.kind {
	case TargetPost:
		return &id, nil
	case TargetComment:
		return nil, &id
	}
	return nil, nil
}

func (t VoteTarget) String() string {
	return t.kind.String() + ":" + t.id
}

// Vote is one user's upvote on one target. Votes are created and deleted,
// never updated.
type Vote struct {
	ID        string
	UserID    string
	Target    VoteTarget
	CreatedAt time.Time
}
