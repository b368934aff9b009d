package mq

import "time"

// RoutingKeyPostSubmitted 帖子提交事件的路由键
const RoutingKeyPostSubmitted = "post.submitted"

// PostSubmittedPayload 帖子提交事件，触发元数据补全
type PostSubmittedPayload struct {
	PostID      int       `json:"post_id"`
	UserID      int       `json:"user_id"`
	URL         string    `json:"instagram_url"`
	ExternalID  string    `json:"instagram_post_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
