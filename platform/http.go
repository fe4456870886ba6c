package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HTTPClient talks to a Lemmy-compatible HTTP API. All requests go through a
// shared rate limiter so the bot never hammers its own instance.
type HTTPClient struct {
	Host    string
	Token   string
	Client  *http.Client
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient configures a client with retries and a requests-per-second
// cap against the given instance base URL (eg "https://example.social").
func NewHTTPClient(host, token string, reqPerSec int, logger *slog.Logger) *HTTPClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil
	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	if reqPerSec <= 0 {
		reqPerSec = 4
	}
	return &HTTPClient{
		Host:    host,
		Token:   token,
		Client:  client,
		Limiter: rate.NewLimiter(rate.Limit(reqPerSec), reqPerSec),
		Logger:  logger.With("system", "platform"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.Host + "/api/v3" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform API %s %s: status=%d body=%s", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "New")
	return q
}

// wire shapes (Lemmy "view" objects)

type personJSON struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ActorID  string `json:"actor_id"`
	Local    bool   `json:"local"`
	Banned   bool   `json:"banned"`
	Deleted  bool   `json:"deleted"`
	Instance int64  `json:"instance_id"`
}

func (p personJSON) toPerson() Person {
	return Person{ID: p.ID, Name: p.Name, ActorURL: p.ActorID, Local: p.Local}
}

type communityJSON struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Local bool   `json:"local"`
}

func (c communityJSON) toCommunity() Community {
	return Community{ID: c.ID, Name: c.Name, Local: c.Local}
}

type postJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	ApID      string    `json:"ap_id"`
	Removed   bool      `json:"removed"`
	Locked    bool      `json:"locked"`
	Deleted   bool      `json:"deleted"`
	Published time.Time `json:"published"`
}

type countsJSON struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

type postViewJSON struct {
	Post      postJSON      `json:"post"`
	Creator   personJSON    `json:"creator"`
	Community communityJSON `json:"community"`
	Counts    countsJSON    `json:"counts"`
}

func (v postViewJSON) toPost() Post {
	return Post{
		ID:          v.Post.ID,
		Title:       v.Post.Name,
		Body:        v.Post.Body,
		URL:         v.Post.URL,
		ActivityURL: v.Post.ApID,
		Author:      v.Creator.toPerson(),
		Community:   v.Community.toCommunity(),
		Removed:     v.Post.Removed,
		Locked:      v.Post.Locked,
		Deleted:     v.Post.Deleted,
		Upvotes:     v.Counts.Upvotes,
		Downvotes:   v.Counts.Downvotes,
		Published:   v.Post.Published,
	}
}

type commentJSON struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	Content   string    `json:"content"`
	ApID      string    `json:"ap_id"`
	Published time.Time `json:"published"`
}

type commentViewJSON struct {
	Comment   commentJSON   `json:"comment"`
	Creator   personJSON    `json:"creator"`
	Community communityJSON `json:"community"`
}

func (v commentViewJSON) toComment() Comment {
	return Comment{
		ID:          v.Comment.ID,
		PostID:      v.Comment.PostID,
		Body:        v.Comment.Content,
		ActivityURL: v.Comment.ApID,
		Author:      v.Creator.toPerson(),
		Community:   v.Community.toCommunity(),
		Published:   v.Comment.Published,
	}
}

func (c *HTTPClient) ListPosts(ctx context.Context, communityID int64, page, limit int) ([]Post, error) {
	q := pageQuery(page, limit)
	if communityID != 0 {
		q.Set("community_id", strconv.FormatInt(communityID, 10))
	}
	var out struct {
		Posts []postViewJSON `json:"posts"`
	}
	if err := c.do(ctx, http.MethodGet, "/post/list", q, nil, &out); err != nil {
		return nil, err
	}
	posts := make([]Post, len(out.Posts))
	for i, v := range out.Posts {
		posts[i] = v.toPost()
	}
	return posts, nil
}

func (c *HTTPClient) ListComments(ctx context.Context, page, limit int) ([]Comment, error) {
	var out struct {
		Comments []commentViewJSON `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, "/comment/list", pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	comments := make([]Comment, len(out.Comments))
	for i, v := range out.Comments {
		comments[i] = v.toComment()
	}
	return comments, nil
}

func (c *HTTPClient) ListReports(ctx context.Context, page, limit int) ([]Report, error) {
	q := pageQuery(page, limit)
	q.Set("unresolved_only", "false")

	var reports []Report
	var postOut struct {
		Reports []struct {
			Report struct {
				ID     int64  `json:"id"`
				Reason string `json:"reason"`
			} `json:"post_report"`
			Post        postJSON      `json:"post"`
			PostCreator personJSON    `json:"post_creator"`
			Creator     personJSON    `json:"creator"`
			Community   communityJSON `json:"community"`
		} `json:"post_reports"`
	}
	if err := c.do(ctx, http.MethodGet, "/post/report/list", q, nil, &postOut); err != nil {
		return nil, err
	}
	for _, r := range postOut.Reports {
		p := postViewJSON{Post: r.Post, Creator: r.PostCreator, Community: r.Community}.toPost()
		reports = append(reports, Report{
			ID:       r.Report.ID,
			Reason:   r.Report.Reason,
			Reporter: r.Creator.toPerson(),
			Post:     &p,
		})
	}

	var commentOut struct {
		Reports []struct {
			Report struct {
				ID     int64  `json:"id"`
				Reason string `json:"reason"`
			} `json:"comment_report"`
			Comment        commentJSON   `json:"comment"`
			CommentCreator personJSON    `json:"comment_creator"`
			Creator        personJSON    `json:"creator"`
			Community      communityJSON `json:"community"`
		} `json:"comment_reports"`
	}
	if err := c.do(ctx, http.MethodGet, "/comment/report/list", q, nil, &commentOut); err != nil {
		return nil, err
	}
	for _, r := range commentOut.Reports {
		cm := commentViewJSON{Comment: r.Comment, Creator: r.CommentCreator, Community: r.Community}.toComment()
		reports = append(reports, Report{
			ID:       r.Report.ID,
			Reason:   r.Report.Reason,
			Reporter: r.Creator.toPerson(),
			Comment:  &cm,
		})
	}
	return reports, nil
}

func (c *HTTPClient) GetPost(ctx context.Context, postID int64) (*Post, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(postID, 10))
	var out struct {
		PostView postViewJSON `json:"post_view"`
	}
	if err := c.do(ctx, http.MethodGet, "/post", q, nil, &out); err != nil {
		return nil, err
	}
	p := out.PostView.toPost()
	return &p, nil
}

func (c *HTTPClient) RemovePost(ctx context.Context, postID int64, removed bool, reason string) error {
	return c.do(ctx, http.MethodPost, "/post/remove", nil, map[string]any{
		"post_id": postID,
		"removed": removed,
		"reason":  reason,
	}, nil)
}

func (c *HTTPClient) RemoveComment(ctx context.Context, commentID int64, removed bool, reason string) error {
	return c.do(ctx, http.MethodPost, "/comment/remove", nil, map[string]any{
		"comment_id": commentID,
		"removed":    removed,
		"reason":     reason,
	}, nil)
}

func (c *HTTPClient) LockPost(ctx context.Context, postID int64, locked bool) error {
	return c.do(ctx, http.MethodPost, "/post/lock", nil, map[string]any{
		"post_id": postID,
		"locked":  locked,
	}, nil)
}

func (c *HTTPClient) BanUser(ctx context.Context, personID int64, ban bool, expires *time.Time, removeData bool, reason string) error {
	body := map[string]any{
		"person_id":   personID,
		"ban":         ban,
		"remove_data": removeData,
		"reason":      reason,
	}
	if expires != nil {
		body["expires"] = expires.Unix()
	}
	return c.do(ctx, http.MethodPost, "/user/ban", nil, body, nil)
}

func (c *HTTPClient) ReportPost(ctx context.Context, postID int64, reason string) error {
	return c.do(ctx, http.MethodPost, "/post/report", nil, map[string]any{
		"post_id": postID,
		"reason":  reason,
	}, nil)
}

func (c *HTTPClient) ReportComment(ctx context.Context, commentID int64, reason string) error {
	return c.do(ctx, http.MethodPost, "/comment/report", nil, map[string]any{
		"comment_id": commentID,
		"reason":     reason,
	}, nil)
}

func (c *HTTPClient) CreateComment(ctx context.Context, postID int64, parentID *int64, content string) (int64, error) {
	body := map[string]any{
		"post_id": postID,
		"content": content,
	}
	if parentID != nil {
		body["parent_id"] = *parentID
	}
	var out struct {
		CommentView commentViewJSON `json:"comment_view"`
	}
	if err := c.do(ctx, http.MethodPost, "/comment", nil, body, &out); err != nil {
		return 0, err
	}
	return out.CommentView.Comment.ID, nil
}

func (c *HTTPClient) EditComment(ctx context.Context, commentID int64, content string) error {
	return c.do(ctx, http.MethodPut, "/comment", nil, map[string]any{
		"comment_id": commentID,
		"content":    content,
	}, nil)
}

func (c *HTTPClient) DistinguishComment(ctx context.Context, commentID int64, distinguished bool) error {
	return c.do(ctx, http.MethodPost, "/comment/distinguish", nil, map[string]any{
		"comment_id":    commentID,
		"distinguished": distinguished,
	}, nil)
}

func (c *HTTPClient) ListVotes(ctx context.Context, postID int64, page, limit int) ([]Vote, error) {
	q := url.Values{}
	q.Set("post_id", strconv.FormatInt(postID, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		PostLikes []struct {
			Creator personJSON `json:"creator"`
			Score   int64      `json:"score"`
		} `json:"post_likes"`
	}
	if err := c.do(ctx, http.MethodGet, "/post/like/list", q, nil, &out); err != nil {
		return nil, err
	}
	votes := make([]Vote, len(out.PostLikes))
	for i, v := range out.PostLikes {
		votes[i] = Vote{Voter: v.Creator.toPerson(), Score: v.Score}
	}
	return votes, nil
}

func (c *HTTPClient) SiteAdmins(ctx context.Context) ([]Person, error) {
	var out struct {
		Admins []struct {
			Person personJSON `json:"person"`
		} `json:"admins"`
	}
	if err := c.do(ctx, http.MethodGet, "/site", nil, nil, &out); err != nil {
		return nil, err
	}
	admins := make([]Person, len(out.Admins))
	for i, a := range out.Admins {
		admins[i] = a.Person.toPerson()
	}
	return admins, nil
}

func (c *HTTPClient) GetPersonByName(ctx context.Context, name string) (*Person, error) {
	q := url.Values{}
	q.Set("username", name)
	var out struct {
		PersonView struct {
			Person personJSON `json:"person"`
		} `json:"person_view"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", q, nil, &out); err != nil {
		return nil, err
	}
	p := out.PersonView.Person.toPerson()
	return &p, nil
}

func (c *HTTPClient) SendPrivateMessage(ctx context.Context, recipientID int64, content string) error {
	return c.do(ctx, http.MethodPost, "/private_message", nil, map[string]any{
		"recipient_id": recipientID,
		"content":      content,
	}, nil)
}

func (c *HTTPClient) ListPrivateMessages(ctx context.Context, unreadOnly bool, page, limit int) ([]PrivateMessage, error) {
	q := url.Values{}
	q.Set("unread_only", strconv.FormatBool(unreadOnly))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		PrivateMessages []struct {
			PrivateMessage struct {
				ID      int64  `json:"id"`
				Content string `json:"content"`
				Read    bool   `json:"read"`
			} `json:"private_message"`
			Creator personJSON `json:"creator"`
		} `json:"private_messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/private_message/list", q, nil, &out); err != nil {
		return nil, err
	}
	pms := make([]PrivateMessage, len(out.PrivateMessages))
	for i, v := range out.PrivateMessages {
		pms[i] = PrivateMessage{
			ID:      v.PrivateMessage.ID,
			Content: v.PrivateMessage.Content,
			Read:    v.PrivateMessage.Read,
			Creator: v.Creator.toPerson(),
		}
	}
	return pms, nil
}

func (c *HTTPClient) MarkPrivateMessageRead(ctx context.Context, pmID int64, read bool) error {
	return c.do(ctx, http.MethodPost, "/private_message/mark_as_read", nil, map[string]any{
		"private_message_id": pmID,
		"read":               read,
	}, nil)
}
