package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSandbox_Verify_ImportAllowList(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "allowed import",
			src:  "import pandas as pd\n",
		},
		{
			name: "allowed dotted import",
			src:  "import plotly.express as px\n",
		},
		{
			name: "allowed from import",
			src:  "from math import sqrt\n",
		},
		{
			name:    "os is blocked",
			src:     "import os\n",
			wantErr: "Importing 'os' is not allowed",
		},
		{
			name:    "subprocess is blocked",
			src:     "import subprocess\n",
			wantErr: "Importing 'subprocess' is not allowed",
		},
		{
			name:    "blocked module aliased",
			src:     "import socket as s\n",
			wantErr: "Importing 'socket' is not allowed",
		},
		{
			name:    "blocked from import",
			src:     "from os import path\n",
			wantErr: "Importing 'os' is not allowed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.src, Options{})
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var secErr *SecurityError
			require.ErrorAs(t, err, &secErr)
			require.Equal(t, tt.wantErr, secErr.Message)
		})
	}
}

func TestSandbox_Verify_BannedCalls(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "open", src: "f = open('/etc/passwd')\n"},
		{name: "exec", src: "exec('print(1)')\n"},
		{name: "eval", src: "eval('1+1')\n"},
		{name: "compile", src: "compile('x', 'f', 'exec')\n"},
		{name: "globals", src: "g = globals()\n"},
		{name: "locals", src: "l = locals()\n"},
		{name: "vars", src: "v = vars()\n"},
		{name: "dir", src: "d = dir()\n"},
		{name: "dunder import", src: "__import__('os')\n"},
		{name: "getattr", src: "getattr(x, 'secret')\n"},
		{name: "nested in function body", src: "def f():\n    return open('x')\n"},
		{name: "nested in loop", src: "for i in range(3):\n    eval('i')\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.src, Options{})
			var secErr *SecurityError
			require.ErrorAs(t, err, &secErr)
		})
	}
}

func TestSandbox_Verify_PrivateMembers(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		blocked bool
	}{
		{
			name:    "private attribute access",
			src:     "x = [1]\ny = x._private\n",
			blocked: true,
		},
		{
			name:    "dunder attribute access",
			src:     "x = 'a'\ny = x.__class__\n",
			blocked: true,
		},
		{
			name:    "reading an unbound underscore name",
			src:     "print(_secret)\n",
			blocked: true,
		},
		{
			name: "underscore as a loop variable",
			src:  "total = 0\nfor _ in range(3):\n    total = total + 1\n",
		},
		{
			name: "underscore local binding read back",
			src:  "_tmp = 41\nresult = _tmp + 1\n",
		},
		{
			name: "tuple unpacking with underscore",
			src:  "for _, v in [(1, 'a'), (2, 'b')]:\n    print(v)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.src, Options{})
			if !tt.blocked {
				require.NoError(t, err)
				return
			}
			var secErr *SecurityError
			require.ErrorAs(t, err, &secErr)
			require.Equal(t, "Accessing private members is not allowed", secErr.Message)
		})
	}
}

func TestSandbox_Verify_DepthBound(t *testing.T) {
	src := "x = [[[[[[[[1]]]]]]]]\n"
	_, err := Run(src, Options{MaxDepth: 3})
	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)

	_, err = Run(src, Options{MaxDepth: 100})
	require.NoError(t, err)
}

func TestSandbox_Verify_RunsBeforeExecution(t *testing.T) {
	// the print on line 1 must not run when line 2 is rejected
	src := "print('leaked')\nimport os\n"
	exec, err := Run(src, Options{})
	require.Nil(t, exec)
	var secErr *SecurityError
	require.ErrorAs(t, err, &secErr)
}
