package fanvue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// User is the authenticated account returned by /users/me.
type User struct {
	UUID        string `json:"uuid"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	IsCreator   bool   `json:"isCreator"`
	FanCounts   struct {
		FollowersCount   int64 `json:"followersCount"`
		SubscribersCount int64 `json:"subscribersCount"`
	} `json:"fanCounts"`
	ContentCounts struct {
		PostCount int64 `json:"postCount"`
	} `json:"contentCounts"`
}

// Party is a user reference embedded in other records.
type Party struct {
	UUID   string `json:"uuid"`
	Handle string `json:"handle"`
}

// Earning is one monetary event. Amounts are integer cents.
type Earning struct {
	UUID     string    `json:"uuid"`
	Date     time.Time `json:"date"`
	Gross    int64     `json:"gross"`
	Net      int64     `json:"net"`
	Currency string    `json:"currency"`
	Source   string    `json:"source"`
	User     *Party    `json:"user"`
	Creator  *Party    `json:"creator"`
}

// CreatorSummary is an entry of /creators.
type CreatorSummary struct {
	UUID        string `json:"uuid"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// TrackingLink is an entry of /creators/{uuid}/tracking-links.
type TrackingLink struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	LinkURL    string `json:"linkUrl"`
	Clicks     int64  `json:"clicks"`
	Subscribes int64  `json:"subscribes"`
	// Earnings is in cents.
	Earnings int64 `json:"earnings"`
}

// SmartList is an entry of /creators/{uuid}/smart-lists.
type SmartList struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// EarningsInsights is the upstream aggregate returned by /insights/earnings.
type EarningsInsights struct {
	TotalGross int64  `json:"totalGross"`
	TotalNet   int64  `json:"totalNet"`
	Currency   string `json:"currency"`
}

// SendMessageRequest is the body of a chat message.
type SendMessageRequest struct {
	Text       string   `json:"text"`
	MediaUUIDs []string `json:"mediaUuids,omitempty"`
	// Price in cents unlocks the attached media.
	Price *int64 `json:"price,omitempty"`
}

func EarningsPath(creatorUUID string) string {
	return fmt.Sprintf("/creators/%s/earnings", url.PathEscape(creatorUUID))
}

func TrackingLinksPath(creatorUUID string) string {
	return fmt.Sprintf("/creators/%s/tracking-links", url.PathEscape(creatorUUID))
}

func SmartListsPath(creatorUUID string) string {
	return fmt.Sprintf("/creators/%s/smart-lists", url.PathEscape(creatorUUID))
}

// GetCurrentUser returns the account owning token.
func (c *Client) GetCurrentUser(ctx context.Context, token string, cached bool) (*User, error) {
	var user User
	if err := c.GetJSON(ctx, token, "/users/me", nil, &user, cached); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetEarningsInsights returns the upstream earnings aggregate for the
// account owning token.
func (c *Client) GetEarningsInsights(ctx context.Context, token string) (*EarningsInsights, error) {
	var insights EarningsInsights
	if err := c.GetJSON(ctx, token, "/insights/earnings", nil, &insights, true); err != nil {
		return nil, err
	}
	return &insights, nil
}

// ListCreators returns the creators managed by the account owning token.
func (c *Client) ListCreators(ctx context.Context, token string, opts FetchOptions) ([]CreatorSummary, error) {
	creators, _, err := CollectAll[CreatorSummary](ctx, c, token, "/creators", opts)
	return creators, err
}

// ListSmartLists returns the fan lists of a creator.
func (c *Client) ListSmartLists(ctx context.Context, token, creatorUUID string, opts FetchOptions) ([]SmartList, error) {
	lists, _, err := CollectAll[SmartList](ctx, c, token, SmartListsPath(creatorUUID), opts)
	return lists, err
}

// SendMessage sends a chat message to a fan on behalf of the token owner.
func (c *Client) SendMessage(ctx context.Context, token, fanUUID string, msg SendMessageRequest) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/chats/%s/message", url.PathEscape(fanUUID)),
		Body:   msg,
		Token:  token,
	}, c.maxRetries)
	return err
}
