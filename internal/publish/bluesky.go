package publish

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/matheuskafuri/autoposter/internal/config"
)

const postCollection = "app.bsky.feed.post"

// CredentialSource resolves the credential bundle for an account name.
type CredentialSource interface {
	Lookup(name string) (config.Account, error)
}

// Bluesky posts through an AT Protocol PDS. Sessions are created lazily,
// one per account, and reused for the life of the process.
type Bluesky struct {
	creds       CredentialSource
	defaultHost string
	httpClient  *http.Client
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*xrpc.Client
}

func NewBluesky(creds CredentialSource, defaultHost string, timeout time.Duration) *Bluesky {
	return &Bluesky{
		creds:       creds,
		defaultHost: defaultHost,
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
		sessions:    make(map[string]*xrpc.Client),
	}
}

func (b *Bluesky) session(ctx context.Context, account string) (*xrpc.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.sessions[account]; ok {
		return c, nil
	}

	acct, err := b.creds.Lookup(account)
	if err != nil {
		return nil, err
	}
	host := acct.Host
	if host == "" {
		host = b.defaultHost
	}

	client := &xrpc.Client{Client: b.httpClient, Host: host}
	input := &comatproto.ServerCreateSession_Input{
		Identifier: acct.Identifier,
		Password:   acct.Password,
	}
	if acct.AuthFactorToken != "" {
		input.AuthFactorToken = &acct.AuthFactorToken
	}
	ses, err := comatproto.ServerCreateSession(ctx, client, input)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", account, err)
	}
	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  ses.AccessJwt,
		RefreshJwt: ses.RefreshJwt,
		Handle:     ses.Handle,
		Did:        ses.Did,
	}
	b.sessions[account] = client
	return client, nil
}

func (b *Bluesky) Post(ctx context.Context, account, text string, reply *Reply) (Receipt, error) {
	client, err := b.session(ctx, account)
	if err != nil {
		return Receipt{}, err
	}

	now := b.now()
	post := &appbsky.FeedPost{
		LexiconTypeID: postCollection,
		Text:          text,
		Facets:        linkFacets(text),
		CreatedAt:     now.UTC().Format(util.ISO8601),
	}
	if reply != nil {
		post.Reply = &appbsky.FeedPost_ReplyRef{
			Root:   &comatproto.RepoStrongRef{Uri: reply.Root.URI, Cid: reply.Root.CID},
			Parent: &comatproto.RepoStrongRef{Uri: reply.Parent.URI, Cid: reply.Parent.CID},
		}
	}

	out, err := comatproto.RepoCreateRecord(ctx, client, &comatproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("creating post: %w", err)
	}
	return Receipt{URI: out.Uri, CID: out.Cid, Text: text, PostedAt: now}, nil
}
