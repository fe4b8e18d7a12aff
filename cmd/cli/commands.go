package main

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/goph-push/internal/config"
	"github.com/and161185/goph-push/internal/convert"
	"github.com/and161185/goph-push/internal/crypto"
	"github.com/and161185/goph-push/internal/crypto/keyfile"
	"github.com/and161185/goph-push/internal/model"
	"github.com/and161185/goph-push/internal/service"
	"github.com/and161185/goph-push/internal/webpush"
)

// ------- builders -------

// genKeys creates a VAPID pair and returns env lines for the server. With
// sealPath the private key goes to a sealed file instead of the output.
func genKeys(sealPath string, passphrase []byte) ([]string, error) {
	kp, err := webpush.GenerateVapidKeyPair()
	if err != nil {
		return nil, err
	}
	lines := []string{config.EnvVapidPublicKey + "=" + webpush.EncodeKey(kp.PublicKey)}
	if sealPath == "" {
		return append(lines, config.EnvVapidPrivateKey+"="+webpush.EncodeKey(kp.PrivateKey)), nil
	}
	if err := keyfile.WriteFile(sealPath, passphrase, kp.PrivateKey); err != nil {
		return nil, err
	}
	return append(lines, "# vapid.private_key_file: "+sealPath), nil
}

// mintToken signs a token locally with the server's JWT key.
func mintToken(key []byte, member string, admin bool, ttl time.Duration) (model.Tokens, error) {
	if len(key) == 0 {
		return model.Tokens{}, fmt.Errorf("signing key required (%s or -key)", config.EnvJWTKey)
	}
	id, err := u.FromString(member)
	if err != nil || id == u.Nil {
		return model.Tokens{}, fmt.Errorf("bad member id %q", member)
	}
	return service.NewTokenIssuer(key, ttl).Issue(id, admin)
}

type payloadFlags struct {
	file, title, body, url, tag string
}

func (p *payloadFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.file, "file", "", "payload JSON file ('-'=stdin)")
	fs.StringVar(&p.title, "title", "", "notification title")
	fs.StringVar(&p.body, "body", "", "notification body")
	fs.StringVar(&p.url, "url", "", "url to open on click")
	fs.StringVar(&p.tag, "tag", "", "notification tag")
}

// payload reads the file as-is or builds a title/body/url/tag document.
func (p payloadFlags) payload() (model.NotificationPayload, error) {
	if p.file != "" {
		b, err := readAll(p.file)
		if err != nil {
			return nil, err
		}
		if !json.Valid(b) {
			return nil, errors.New("payload file is not JSON")
		}
		return model.NotificationPayload(b), nil
	}
	if p.title == "" {
		return nil, errors.New("need -file or -title")
	}
	return model.Notification{Title: p.title, Body: p.body, URL: p.url, Tag: p.tag}.Payload()
}

// subscriptionRequest accepts PushSubscription.toJSON() output from a file
// or the three fields from flags.
func subscriptionRequest(file, endpoint, p256dh, auth string) (*structpb.Struct, error) {
	if file == "" {
		return structpb.NewStruct(map[string]any{"endpoint": endpoint, "p256dh": p256dh, "auth": auth})
	}
	b, err := readAll(file)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("subscription file: %w", err)
	}
	return structpb.NewStruct(m)
}

// testSubscriber is what a browser would hold for one subscription.
type testSubscriber struct {
	Endpoint   string            `json:"endpoint"`
	Keys       map[string]string `json:"keys"`
	PrivateKey string            `json:"private_key"`
}

func newSubscriber(endpoint string) (testSubscriber, error) {
	priv, err := ecdh.P256().GenerateKey(crypto.Reader)
	if err != nil {
		return testSubscriber{}, err
	}
	auth, err := crypto.RandBytes(webpush.AuthSecretLen)
	if err != nil {
		return testSubscriber{}, err
	}
	return testSubscriber{
		Endpoint: endpoint,
		Keys: map[string]string{
			"p256dh": webpush.EncodeKey(priv.PublicKey().Bytes()),
			"auth":   webpush.EncodeKey(auth),
		},
		PrivateKey: webpush.EncodeKey(priv.Bytes()),
	}, nil
}

func decryptBody(privB64, authB64 string, body []byte) ([]byte, error) {
	raw, err := webpush.DecodeKey(privB64)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	auth, err := webpush.DecodeKey(authB64)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return webpush.Decrypt(priv, auth, body)
}

// ------- commands -------

func cmdGenKeys(args []string) {
	fs := flag.NewFlagSet("genkeys", flag.ExitOnError)
	seal := fs.String("seal", "", "write the private key to a sealed file")
	_ = fs.Parse(args)

	pass := os.Getenv(config.EnvVapidPassphrase)
	need(*seal == "" || pass != "", "-seal needs "+config.EnvVapidPassphrase)
	lines, err := genKeys(*seal, []byte(pass))
	if err != nil {
		fail(err)
	}
	fmt.Println(strings.Join(lines, "\n"))
}

func cmdVapidKey(ctx context.Context, o dialOpts) {
	cc, cli, err := dial(o, "")
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	out, err := cli.GetVapidPublicKey(ctx, &emptypb.Empty{})
	if err != nil {
		fail(err)
	}
	fmt.Println(out.GetValue())
}

func cmdMintToken(args []string) {
	fs := flag.NewFlagSet("mint-token", flag.ExitOnError)
	member := fs.String("member", "", "member id (uuid)")
	admin := fs.Bool("admin", false, "grant admin")
	ttl := fs.Duration("ttl", service.DefaultAccessTTL, "token lifetime")
	key := fs.String("key", os.Getenv(config.EnvJWTKey), "HS256 signing key")
	save := fs.Bool("save", false, "store as the current token")
	_ = fs.Parse(args)

	tok, err := mintToken([]byte(*key), *member, *admin, *ttl)
	if err != nil {
		fail(err)
	}
	if *save {
		if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
			fail(err)
		}
	}
	fmt.Println(tok.AccessToken)
}

func cmdSaveToken(args []string) {
	fs := flag.NewFlagSet("save-token", flag.ExitOnError)
	tok := fs.String("token", "", "access token")
	_ = fs.Parse(args)
	need(*tok != "", "need -token")

	exp, err := tokenExpiry(*tok)
	if err != nil {
		fail(err)
	}
	if err := saveToken(*tok, exp); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdSubscribe(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	file := fs.String("file", "", "PushSubscription JSON ('-'=stdin)")
	endpoint := fs.String("endpoint", "", "push endpoint")
	p256dh := fs.String("p256dh", "", "subscriber public key (base64url)")
	auth := fs.String("auth", "", "auth secret (base64url)")
	_ = fs.Parse(args)
	need(*file != "" || *endpoint != "", "need -file or -endpoint -p256dh -auth")

	req, err := subscriptionRequest(*file, *endpoint, *p256dh, *auth)
	if err != nil {
		fail(err)
	}
	cc, cli := dialAuthed(o)
	defer cc.Close()
	out, err := cli.Subscribe(ctx, req)
	if err != nil {
		fail(err)
	}
	printJSON(out.AsMap())
}

func cmdUnsubscribe(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("unsubscribe", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "push endpoint")
	_ = fs.Parse(args)
	need(*endpoint != "", "need -endpoint")

	cc, cli := dialAuthed(o)
	defer cc.Close()
	req, _ := structpb.NewStruct(map[string]any{"endpoint": *endpoint})
	if _, err := cli.Unsubscribe(ctx, req); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdList(ctx context.Context, o dialOpts) {
	cc, cli := dialAuthed(o)
	defer cc.Close()
	out, err := cli.ListSubscriptions(ctx, &emptypb.Empty{})
	if err != nil {
		fail(err)
	}
	subs, err := convert.FromStructSubscriptions(out)
	if err != nil {
		fail(err)
	}
	type row struct{ ID, Endpoint, UpdatedAt string }
	rows := []row{}
	for _, s := range subs {
		rows = append(rows, row{ID: s.ID.String(), Endpoint: s.Endpoint, UpdatedAt: s.UpdatedAt.Format(time.RFC3339)})
	}
	printJSON(rows)
}

func cmdNotify(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("notify", flag.ExitOnError)
	member := fs.String("member", "", "member id (uuid)")
	var pf payloadFlags
	pf.register(fs)
	_ = fs.Parse(args)
	need(*member != "", "need -member")

	payload, err := pf.payload()
	if err != nil {
		fail(err)
	}
	req, err := convert.ToStructPayload(payload, map[string]any{"member_id": *member})
	if err != nil {
		fail(err)
	}
	cc, cli := dialAuthed(o)
	defer cc.Close()
	out, err := cli.NotifyMember(ctx, req)
	if err != nil {
		fail(err)
	}
	printJSON(convert.FromStructSummary(out))
}

func cmdBroadcast(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("broadcast", flag.ExitOnError)
	var pf payloadFlags
	pf.register(fs)
	_ = fs.Parse(args)

	payload, err := pf.payload()
	if err != nil {
		fail(err)
	}
	req, err := convert.ToStructPayload(payload, nil)
	if err != nil {
		fail(err)
	}
	cc, cli := dialAuthed(o)
	defer cc.Close()
	out, err := cli.Broadcast(ctx, req)
	if err != nil {
		fail(err)
	}
	printJSON(convert.FromStructSummary(out))
}

func cmdIssueToken(ctx context.Context, o dialOpts, args []string) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	member := fs.String("member", "", "member id (uuid)")
	admin := fs.Bool("admin", false, "grant admin")
	_ = fs.Parse(args)
	need(*member != "", "need -member")

	cc, cli := dialAuthed(o)
	defer cc.Close()
	req, _ := structpb.NewStruct(map[string]any{"member_id": *member, "admin": *admin})
	out, err := cli.IssueToken(ctx, req)
	if err != nil {
		fail(err)
	}
	tok, err := convert.FromStructTokens(out)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]any{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt})
}

func cmdNewSubscriber(args []string) {
	fs := flag.NewFlagSet("new-subscriber", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "push endpoint")
	_ = fs.Parse(args)
	need(*endpoint != "", "need -endpoint")

	sub, err := newSubscriber(*endpoint)
	if err != nil {
		fail(err)
	}
	printJSON(sub)
}

func cmdDecrypt(args []string) {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	key := fs.String("key", "", "subscriber private key (base64url)")
	auth := fs.String("auth", "", "auth secret (base64url)")
	file := fs.String("file", "-", "aes128gcm body ('-'=stdin)")
	_ = fs.Parse(args)
	need(*key != "" && *auth != "", "need -key and -auth")

	body, err := readAll(*file)
	if err != nil {
		fail(err)
	}
	pt, err := decryptBody(*key, *auth, body)
	if err != nil {
		fail(err)
	}
	fmt.Println(string(pt))
}
