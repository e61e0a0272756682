// Package service exposes the node's read API and transaction endpoint over
// HTTP. It is the interface off-chain collaborators (frontends, indexers)
// consume: they submit signed transactions and poll events by sequence number.
package service

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/Osiyomeoh/carrychain/src/node"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	bindAddress string
	node        *node.Node
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := &Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger.WithField("component", "service"),
	}

	service.registerHandlers()

	return service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering CarryChain API handlers")

	s.router.HandleFunc("/tx", s.SubmitTx).Methods("POST")
	s.router.HandleFunc("/routes/{id}", s.GetRoute).Methods("GET")
	s.router.HandleFunc("/deliveries/{id}", s.GetDelivery).Methods("GET")
	s.router.HandleFunc("/verifications/{id}", s.GetVerification).Methods("GET")
	s.router.HandleFunc("/reputation/{address}", s.GetReputation).Methods("GET")
	s.router.HandleFunc("/balance/{token}/{address}", s.GetBalance).Methods("GET")
	s.router.HandleFunc("/tokens", s.GetTokens).Methods("GET")
	s.router.HandleFunc("/events", s.GetEvents).Methods("GET")
	s.router.HandleFunc("/stats", s.GetStats).Methods("GET")
}

// Router returns the service's router, for mounting in another server or in
// tests.
func (s *Service) Router() *mux.Router {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving CarryChain API")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
	)

	err := http.ListenAndServe(s.bindAddress, cors(s.router))
	if err != nil {
		s.logger.Error(err)
	}
}

// SubmitTx decodes a signed transaction from the request body, applies it, and
// returns the receipt. Contract rejections are mapped to HTTP status codes by
// error category, with the exact reason string as the body.
func (s *Service) SubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx := new(node.Transaction)
	if err := tx.Unmarshal(body); err != nil {
		s.logger.WithError(err).Error("Parsing transaction")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := s.node.SubmitTransaction(tx)
	if err != nil {
		s.logger.WithError(err).WithField("type", tx.Type).Debug("Transaction rejected")
		http.Error(w, err.Error(), callStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// GetRoute ...
func (s *Service) GetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	route, err := s.node.GetRoute(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeRecord(w, route)
}

// GetDelivery ...
func (s *Service) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	delivery, err := s.node.GetDelivery(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeRecord(w, delivery)
}

// GetVerification returns the verification record for a delivery id. Unknown
// ids return an empty record, mirroring the contract's read semantics.
func (s *Service) GetVerification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeRecord(w, s.node.GetVerification(id))
}

// GetReputation ...
func (s *Service) GetReputation(w http.ResponseWriter, r *http.Request) {
	address, err := ledger.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"address": address.String(),
		"score":   s.node.GetReputationScore(address),
	})
}

// GetBalance ...
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tokenAddress, err := ledger.ParseAddress(vars["token"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := ledger.ParseAddress(vars["address"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	balance, err := s.node.GetBalance(tokenAddress, account)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"token":   tokenAddress.String(),
		"account": account.String(),
		"balance": balance.String(),
	})
}

// GetTokens ...
func (s *Service) GetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.node.GetSupportedTokens()

	res := make([]string, len(tokens))
	for i, t := range tokens {
		res[i] = t.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// GetEvents returns all events with a sequence number greater than the "since"
// query parameter (0 when absent, i.e. the whole log).
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	since := 0
	if param := r.URL.Query().Get("since"); param != "" {
		var err error
		since, err = strconv.Atoi(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing since parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.node.EventsSince(since))
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type marshaler interface {
	Marshal() ([]byte, error)
}

// writeRecord writes a record's canonical JSON encoding.
func writeRecord(w http.ResponseWriter, record marshaler) {
	data, err := record.Marshal()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func pathID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

// callStatus maps contract error categories to HTTP status codes.
func callStatus(err error) int {
	switch {
	case ledger.IsCall(err, ledger.Authorization):
		return http.StatusForbidden
	case ledger.IsCall(err, ledger.StateGuard):
		return http.StatusConflict
	case ledger.IsCall(err, ledger.Validation):
		return http.StatusBadRequest
	case ledger.IsCall(err, ledger.Capacity):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
