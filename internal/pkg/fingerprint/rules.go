package fingerprint

// DefaultRules 内置规则，按优先级排列
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ssh",
			Keywords: []string{"SSH"},
			Service:  "SSH",
			Version:  `OpenSSH[_-](\d+\.\d+[^ ]*)`,
			OS:       []OSHint{{Keyword: "Ubuntu", OS: "Unix/Linux"}},
			Children: []Rule{
				{Name: "openssh", Keywords: []string{"OpenSSH"}, Product: "OpenSSH"},
				{Name: "dropbear", Keywords: []string{"dropbear"}, Product: "Dropbear", Version: `dropbear_(\d+\.\d+)`},
			},
		},
		{
			Name:     "http",
			Keywords: []string{"HTTP", "Server:"},
			Service:  "HTTP",
			Children: []Rule{
				{
					Name:     "apache",
					Keywords: []string{"Apache"},
					Product:  "Apache",
					Version:  `Apache/(\d+\.\d+\.\d+)`,
					OS:       []OSHint{{OS: "Unix/Linux"}},
				},
				{
					Name:     "nginx",
					Keywords: []string{"nginx"},
					Product:  "nginx",
					Version:  `nginx/(\d+\.\d+\.\d+)`,
				},
				{
					Name:     "iis",
					Keywords: []string{"IIS"},
					Product:  "IIS",
					Version:  `IIS/(\d+\.\d+)`,
					OS:       []OSHint{{OS: "Windows"}},
				},
			},
		},
		{
			Name:     "ftp",
			Keywords: []string{"FTP", "FileZilla"},
			Service:  "FTP",
			OS:       []OSHint{{Keyword: "Ubuntu", OS: "Unix/Linux"}, {Keyword: "Debian", OS: "Unix/Linux"}},
			Children: []Rule{
				{Name: "vsftpd", Keywords: []string{"vsFTPd"}, Product: "vsftpd", Version: `vsFTPd (\d+\.\d+\.\d+)`, OS: []OSHint{{OS: "Unix/Linux"}}},
				{Name: "proftpd", Keywords: []string{"ProFTPD"}, Product: "ProFTPD", Version: `ProFTPD (\d+\.\d+\.\d+)`, OS: []OSHint{{OS: "Unix/Linux"}}},
				{Name: "filezilla", Keywords: []string{"FileZilla"}, Product: "FileZilla Server", Version: `FileZilla Server (?:version )?(\d+\.\d+\.\d+)`, OS: []OSHint{{OS: "Windows"}}},
			},
		},
		{
			Name:     "smtp",
			Keywords: []string{"ESMTP", "SMTP"},
			Service:  "SMTP",
			OS:       []OSHint{{Keyword: "Ubuntu", OS: "Unix/Linux"}, {Keyword: "Debian", OS: "Unix/Linux"}},
			Children: []Rule{
				{Name: "postfix", Keywords: []string{"Postfix"}, Product: "Postfix"},
				{Name: "exim", Keywords: []string{"Exim"}, Product: "Exim", Version: `Exim (\d+\.\d+)`},
				{Name: "exchange", Keywords: []string{"Microsoft ESMTP"}, Product: "Exchange", OS: []OSHint{{OS: "Windows"}}},
			},
		},
	}
}

// DefaultRefineHints HEAD 响应中的系统特征，按顺序取第一个
func DefaultRefineHints() []OSHint {
	return []OSHint{
		{Keyword: "Ubuntu", OS: "Linux"},
		{Keyword: "Debian", OS: "Linux"},
		{Keyword: "Win", OS: "Windows"},
		{Keyword: "FreeBSD", OS: "FreeBSD"},
		{Keyword: "Darwin", OS: "macOS"},
	}
}
