package errtrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		username string
		want     string
	}{
		{
			name: "ConnectionMessage",
			in:   "connection to 10.0.0.5 from /home/alice/server failed",
			want: "connection to [IP hidden] from /home/[username hidden] failed",
		},
		{
			name: "IPv4",
			in:   "my ipv4 address is 215.223.110.131",
			want: "my ipv4 address is [IP hidden]",
		},
		{
			name: "IPv6Full",
			in:   "my ipv6 address is f833:be65:65da:975b:4896:88f7:6964:44c0",
			want: "my ipv6 address is [IP hidden]",
		},
		{
			name: "IPv6Compressed",
			in:   "bound to fe80::1 on eth0",
			want: "bound to [IP hidden] on eth0",
		},
		{
			name: "MacHome",
			in:   "/Users/MyName/AppData/Local/Temp",
			want: "/Users/[username hidden]",
		},
		{
			name: "WindowsHome",
			in:   `C:\Users\MyName\AppData\Local\Temp`,
			want: `C:\Users\[username hidden]`,
		},
		{
			name: "WindowsHomeLowerCase",
			in:   `open d:\users\bob\file.txt: denied`,
			want: `open d:\users\[username hidden] denied`,
		},
		{
			name:     "Username",
			in:       "hello my name is david",
			username: "david",
			want:     "hello my name is [username hidden]",
		},
		{
			name: "NothingToHide",
			in:   "index out of range [3] with length 2",
			want: "index out of range [3] with length 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, anonymize(tt.in, tt.username))
		})
	}
}

func TestAnonymizeIdempotent(t *testing.T) {
	inputs := []string{
		"connection to 10.0.0.5 from /home/alice/server failed",
		"the user alice on 192.168.1.1",
		"/home/bob/1.2.3.4/data",
		`C:\Users\MyName\AppData`,
		"hidden paths under /Users/hidden",
		"f833:be65:65da:975b:4896:88f7:6964:44c0 and ::",
	}
	for _, username := range []string{"", "user", "hidden", "alice", "IP"} {
		for _, in := range inputs {
			once := anonymize(in, username)
			assert.Equal(t, once, anonymize(once, username), "username %q input %q", username, in)
		}
	}
}

func TestReplaceOutsidePlaceholders(t *testing.T) {
	got := replaceOutsidePlaceholders("user [username hidden] user", "user", UsernamePlaceholder)
	assert.Equal(t, "[username hidden] [username hidden] [username hidden]", got)
}
