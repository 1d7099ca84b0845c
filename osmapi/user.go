package osmapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// User is an OSM account as returned by the user endpoints.
type User struct {
	ID             int64  `json:"id"`
	DisplayName    string `json:"display_name"`
	AccountCreated string `json:"account_created"`
	Description    string `json:"description"`
	ImageURL       string `json:"img_url"`
	Changesets     int    `json:"changesets_count"`
	Traces         int    `json:"traces_count"`
}

type userDetailsResponse struct {
	User struct {
		ID             int64  `json:"id"`
		DisplayName    string `json:"display_name"`
		AccountCreated string `json:"account_created"`
		Description    string `json:"description"`
		Img            struct {
			Href string `json:"href"`
		} `json:"img"`
		Changesets struct {
			Count int `json:"count"`
		} `json:"changesets"`
		Traces struct {
			Count int `json:"count"`
		} `json:"traces"`
	} `json:"user"`
}

// UserDetails returns the account behind an OAuth access token.
func (c *Client) UserDetails(ctx context.Context, token string) (*User, error) {
	resp, err := c.do(ctx, "GET", "/user/details.json", nil, nil, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	details := userDetailsResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, errors.Wrap(err, "parsing user details")
	}
	u := details.User
	return &User{
		ID:             u.ID,
		DisplayName:    u.DisplayName,
		AccountCreated: u.AccountCreated,
		Description:    u.Description,
		ImageURL:       u.Img.Href,
		Changesets:     u.Changesets.Count,
		Traces:         u.Traces.Count,
	}, nil
}

type userXMLResponse struct {
	XMLName xml.Name `xml:"osm"`
	User    struct {
		ID             int64  `xml:"id,attr"`
		DisplayName    string `xml:"display_name,attr"`
		AccountCreated string `xml:"account_created,attr"`
		Description    string `xml:"description"`
		Img            struct {
			Href string `xml:"href,attr"`
		} `xml:"img"`
		Changesets struct {
			Count int `xml:"count,attr"`
		} `xml:"changesets"`
		Traces struct {
			Count int `xml:"count,attr"`
		} `xml:"traces"`
	} `xml:"user"`
}

// UserByID fetches the public profile of an account.
func (c *Client) UserByID(ctx context.Context, id int64) (*User, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/user/%d", id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	profile := userXMLResponse{}
	if err := xml.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, errors.Wrapf(err, "parsing user %d", id)
	}
	u := profile.User
	return &User{
		ID:             u.ID,
		DisplayName:    u.DisplayName,
		AccountCreated: u.AccountCreated,
		Description:    u.Description,
		ImageURL:       u.Img.Href,
		Changesets:     u.Changesets.Count,
		Traces:         u.Traces.Count,
	}, nil
}

// PostChangesetComment posts a discussion comment on a changeset on
// behalf of the token's account.
func (c *Client) PostChangesetComment(ctx context.Context, changesetID int64, text, token string) error {
	form := url.Values{"text": {text}}
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/changeset/%d/comment", changesetID),
		nil, strings.NewReader(form.Encode()), token)
	if err != nil {
		return errors.Wrapf(err, "commenting on changeset %d", changesetID)
	}
	resp.Body.Close()
	logger.Printf("posted comment on changeset %d", changesetID)
	return nil
}
