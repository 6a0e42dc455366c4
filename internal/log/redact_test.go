package log

import (
	"errors"
	"log/slog"
	"testing"
)

func TestRedactorAttr(t *testing.T) {
	t.Parallel()

	r := newRedactor([]string{"session=9f8e7d6c", "short", "  "})

	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{name: "cookie key", attr: slog.String("cookie", "a=b"), want: Mask},
		{name: "header key with dashes", attr: slog.String("Proxy-Authorization", "x"), want: Mask},
		{name: "key containing token", attr: slog.String("telegram_token", "x"), want: Mask},
		{name: "webhook url key", attr: slog.String("webhook_url", "https://hooks.example.com/T1"), want: Mask},
		{name: "bearer value", attr: slog.String("header", "Bearer abc.def"), want: Mask},
		{name: "bot token value", attr: slog.String("value", "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"), want: Mask},
		{name: "anthropic key value", attr: slog.String("value", "sk-ant-api03-abcdef"), want: Mask},
		{name: "configured cookie inside text", attr: slog.String("detail", "sent session=9f8e7d6c to host"), want: "sent " + Mask + " to host"},
		{name: "short configured value is ignored", attr: slog.String("column", "short"), want: "short"},
		{name: "url credentials", attr: slog.String("url", "https://user:pw@example.com/grid"), want: "https://" + Mask + "@example.com/grid"},
		{name: "row identity is public", attr: slog.String("row_identity", "0123456789abcdef0123456789abcdef"), want: "0123456789abcdef0123456789abcdef"},
		{name: "finding id is public", attr: slog.String("finding_id", "0123456789abcdef0123456789abcdef"), want: "0123456789abcdef0123456789abcdef"},
		{name: "plain url", attr: slog.String("url", "https://example.com/mp/#overview"), want: "https://example.com/mp/#overview"},
		{name: "column key", attr: slog.String("column_key", "phone"), want: "phone"},
		{
			name: "bot token in error",
			attr: slog.Any("error", errors.New(`Post "https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage": EOF`)),
			want: `Post "https://api.telegram.org/bot` + Mask + `/sendMessage": EOF`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.attr(tt.attr)
			if got.Key != tt.attr.Key {
				t.Errorf("key = %q, want %q", got.Key, tt.attr.Key)
			}
			if got.Value.String() != tt.want {
				t.Errorf("value = %q, want %q", got.Value.String(), tt.want)
			}
		})
	}
}

func TestRedactorLongestLiteralFirst(t *testing.T) {
	t.Parallel()

	r := newRedactor([]string{"abcdef", "abcdefghij"})
	if got, want := r.text("x abcdefghij y"), "x "+Mask+" y"; got != want {
		t.Errorf("text() = %q, want %q", got, want)
	}
}

func TestRedactorGroup(t *testing.T) {
	t.Parallel()

	r := newRedactor(nil)
	got := r.attr(slog.Group("request", slog.String("cookie", "a=b"), slog.String("url", "https://example.com")))
	group := got.Value.Group()
	if len(group) != 2 {
		t.Fatalf("group has %d attrs, want 2", len(group))
	}
	if group[0].Value.String() != Mask {
		t.Errorf("cookie = %q, want masked", group[0].Value.String())
	}
	if group[1].Value.String() != "https://example.com" {
		t.Errorf("url = %q, want unchanged", group[1].Value.String())
	}
}
