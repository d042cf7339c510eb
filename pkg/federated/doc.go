// Package federated implements sign-in through an external identity
// provider and the role-selection flow for first-time federated users.
//
// The web client's provider popup becomes the native equivalent here: the
// system browser is opened on the provider's authorization URL and a
// loopback HTTP server collects the callback. The verified ID token is then
// exchanged with the StartupVista backend for an application session.
//
// A first-time identity comes back from the exchange as a conflict-class
// response; the bridge parks the provider's profile claims as a
// PendingFederatedUser until CompleteRegistration is called with a chosen
// role. Cancelling or failing the flow never leaves partial session state.
package federated
