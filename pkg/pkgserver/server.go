// Package pkgserver implements the Private Key Generator's HTTP surface
// of §4.6/§6: the parameters endpoint, the start/jwt/key session flow,
// and a Prometheus metrics endpoint, behind gin and gin-contrib/cors the
// way luxfi-adx's cmd/api wires its router together.
package pkgserver

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/internal/sessionoracle"
	"github.com/encryption4all/irmaseal/internal/sessiontoken"
	"github.com/encryption4all/irmaseal/kem"
	"github.com/encryption4all/irmaseal/pkg/api"
)

// clientsTotal is the Prometheus counter vector required by §6:
// postguard_clients{path,host,host_version,client,client_version,status}.
var clientsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "postguard_clients",
	Help: "Requests to the PKG HTTP surface, labeled by route and reported client identity.",
}, []string{"path", "host", "host_version", "client", "client_version", "status"})

func init() {
	prometheus.MustRegister(clientsTotal)
}

// Server holds the PKG's long-lived, read-only state: the master key
// pair, the simulated disclosure oracle, and the pre-serialized
// parameters response.
type Server struct {
	scheme   kem.Scheme
	mpk      kem.PublicKey
	msk      kem.MasterSecretKey
	oracle   *sessionoracle.Oracle
	log      *zap.Logger
	tokenKey []byte

	paramsJSON   []byte
	etag         string
	lastModified time.Time
}

// New builds a Server from an already-provisioned master key pair. log
// may be nil, in which case a no-op logger is used.
func New(scheme kem.Scheme, mpk kem.PublicKey, msk kem.MasterSecretKey, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tokenKey := make([]byte, 32)
	if _, err := rand.Read(tokenKey); err != nil {
		return nil, err
	}

	s := &Server{
		scheme:   scheme,
		mpk:      mpk,
		msk:      msk,
		oracle:   sessionoracle.New(),
		log:      log,
		tokenKey: tokenKey,
	}

	params := api.Parameters{FormatVersion: api.FormatVersion, PublicKey: mpk.Bytes()}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(mpk.Bytes())
	s.paramsJSON = b
	s.etag = `"` + hex.EncodeToString(sum[:]) + `"`
	s.lastModified = time.Now().UTC()

	return s, nil
}

// Oracle exposes the underlying simulated disclosure oracle so a test
// harness or local client simulator can drive a session to completion
// without a real IRMA-compatible app.
func (s *Server) Oracle() *sessionoracle.Oracle { return s.oracle }

// Router builds the gin engine serving every route in §4.6.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "ETag", "X-PostGuard-Client-Version"}
	corsCfg.MaxAge = 86400 * time.Second
	r.Use(cors.New(corsCfg))

	v2 := r.Group("/v2")
	v2.GET("/parameters", s.handleParameters)
	for _, prefix := range []string{"irma", "request"} {
		v2.POST("/"+prefix+"/start", s.handleStart)
		v2.GET("/"+prefix+"/jwt/:token", s.handleJWT)
		v2.GET("/"+prefix+"/key/:timestamp", s.handleKey)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		clientVersion := c.GetHeader("X-PostGuard-Client-Version")
		host, hostVersion, client, clientName := parseClientVersion(clientVersion)
		clientsTotal.WithLabelValues(c.FullPath(), host, hostVersion, client, clientName, strconv.Itoa(c.Writer.Status())).Inc()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_version", clientVersion),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// parseClientVersion splits the required X-PostGuard-Client-Version
// header, formatted "<host>,<host_version>,<client>,<client_version>".
func parseClientVersion(v string) (host, hostVersion, client, clientVersion string) {
	parts := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			parts = append(parts, v[start:i])
			start = i + 1
		}
	}
	for len(parts) < 4 {
		parts = append(parts, "unknown")
	}
	return parts[0], parts[1], parts[2], parts[3]
}

func (s *Server) handleParameters(c *gin.Context) {
	c.Header("ETag", s.etag)
	c.Header("Last-Modified", s.lastModified.Format(http.TimeFormat))
	c.Data(http.StatusOK, "application/json", s.paramsJSON)
}

func (s *Server) handleStart(c *gin.Context) {
	var req api.KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed key request"})
		return
	}
	validity, ok := api.ClampValidity(req.Validity)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validity exceeds the key-retrieval cap"})
		return
	}
	session := s.oracle.Start(req.Con, validity)
	c.JSON(http.StatusOK, api.SessionData{SessionPtr: session.SessionPtr, Token: session.Token})
}

func (s *Server) handleJWT(c *gin.Context) {
	token := c.Param("token")
	session, ok := s.oracle.Get(token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	switch session.Status {
	case api.StatusDone:
	case api.StatusCancelled:
		c.JSON(http.StatusConflict, gin.H{"error": "session was cancelled"})
		return
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "session is not yet done"})
		return
	}

	jwt, err := sessiontoken.Issue(s.tokenKey, sessiontoken.Claims{Con: session.Disclosed, ProofStatus: session.ProofStatus})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session token"})
		return
	}
	c.String(http.StatusOK, jwt)
}

func (s *Server) handleKey(c *gin.Context) {
	timestamp, err := strconv.ParseUint(c.Param("timestamp"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed timestamp"})
		return
	}

	auth := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if len(auth) <= len(bearerPrefix) || auth[:len(bearerPrefix)] != bearerPrefix {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	claims, err := sessiontoken.Verify(s.tokenKey, auth[len(bearerPrefix):])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return
	}

	if claims.ProofStatus != api.ProofValid {
		c.JSON(http.StatusOK, api.KeyResponse{Status: api.StatusDone, ProofStatus: &claims.ProofStatus})
		return
	}

	policy := identity.RecipientPolicy{Timestamp: timestamp, Con: claims.Con}
	id, err := policy.DeriveIdentity()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to derive identity"})
		return
	}
	usk, err := s.scheme.Extract(s.msk, id, rand.Reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to extract user secret key"})
		return
	}

	proof := api.ProofValid
	c.JSON(http.StatusOK, api.KeyResponse{Status: api.StatusDone, ProofStatus: &proof, Key: usk.Bytes()})
}
