package ipc

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/ilguido/jidl/internal/apperror"
)

// cipherSuite is the single TLS 1.2 cipher suite the wire protocol is
// pinned to.
const cipherSuite = tls.TLS_RSA_WITH_AES_128_GCM_SHA256

// ServerTLSConfig builds the mutual-auth TLS 1.2 configuration for
// JidlServer from a keystore (server certificate + key) and a
// truststore (the CA pool accepted clients must chain to).
func ServerTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAuthMaterialInvalid, "load ipc server keypair")
	}

	pool, err := certPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{cipherSuite},
	}, nil
}

// ClientTLSConfig builds the matching client-side configuration: the
// client's own certificate (presented for mutual auth) and the pool
// used to verify the server.
func ClientTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAuthMaterialInvalid, "load ipc client keypair")
	}

	pool, err := certPool(caFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{cipherSuite},
	}, nil
}

func certPool(caFile string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAuthMaterialInvalid, "read ipc ca certificate")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, apperror.New(apperror.CodeAuthMaterialInvalid, "ipc ca certificate is not valid PEM")
	}
	return pool, nil
}
