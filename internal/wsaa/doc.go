// Package wsaa contiene los tipos de dominio compartidos por el pipeline de
// obtención de Tickets de Acceso (TA) del WSAA de AFIP: el ticket emitido por
// la autoridad, las credenciales de firma y la taxonomía de errores.
//
// Los componentes concretos viven en subpaquetes:
//
//   - request: arma el loginTicketRequest.
//   - signer:  firma el documento en un CMS SignedData (PKCS#12 -> PKCS#7).
//   - client:  invoca LoginCms por SOAP y parsea el loginTicketResponse.
//
// La orquestación (cache + renovación coalescida) vive en internal/broker.
package wsaa
